package bot

import (
	"context"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"github.com/diamondburned/arikawa/v3/utils/json/option"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/commands"
)

func handleInteraction(ctx context.Context, s *session.Session, cm *commands.CommandManager, e *gateway.InteractionCreateEvent, logger *zap.Logger) {
	data, ok := e.Data.(*discord.CommandInteraction)
	if !ok {
		logger.Debug("Received unhandled interaction type", zap.Any("type", e.Data))
		return
	}

	logger = logger.With(
		zap.String("command_name", data.Name),
		zap.String("user_id", e.SenderID().String()),
		zap.String("guild_id", e.GuildID.String()))
	logger.Info("Received slash command")

	cmd, ok := cm.GetCommand(data.Name)
	if !ok {
		logger.Warn("Unknown command")
		reply(s, e, "Command not found.", logger)
		return
	}

	if err := cmd.Execute(ctx, s, e, data); err != nil {
		logger.Error("Error executing command", zap.Error(err))
		reply(s, e, "An error occurred while executing the command.", logger)
		return
	}
	logger.Debug("Command executed successfully")
}

func reply(s *session.Session, e *gateway.InteractionCreateEvent, content string, logger *zap.Logger) {
	err := s.RespondInteraction(e.ID, e.Token, api.InteractionResponse{
		Type: api.MessageInteractionWithSource,
		Data: &api.InteractionResponseData{
			Content: option.NewNullableString(content),
		},
	})
	if err != nil {
		logger.Error("Failed to respond to interaction", zap.Error(err))
	}
}
