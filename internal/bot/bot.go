package bot

import (
	"context"
	"errors"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/commands"
	"github.com/Raikerian/go-discord-mixer/internal/config"
)

// Bot represents the Discord bot.
type Bot struct {
	Session    *session.Session
	Config     *config.Config
	CmdManager *commands.CommandManager
	Logger     *zap.Logger

	guildIDs      []discord.GuildID
	removeHandler func()
}

// NewBotParameters holds dependencies for NewBot.
type NewBotParameters struct {
	fx.In

	Cfg        *config.Config
	S          *session.Session
	CmdManager *commands.CommandManager
	Logger     *zap.Logger
}

// NewBot creates the bot and routes slash command interactions to the
// command manager.
func NewBot(params NewBotParameters) (*Bot, error) {
	if params.S == nil {
		return nil, errors.New("session provided to NewBot is nil")
	}
	if params.Cfg == nil {
		return nil, errors.New("config provided to NewBot is nil")
	}
	if params.Logger == nil {
		return nil, errors.New("logger provided to NewBot is nil")
	}

	b := &Bot{
		Session:    params.S,
		Config:     params.Cfg,
		CmdManager: params.CmdManager,
		Logger:     params.Logger,
		guildIDs:   parseGuildIDs(params.Cfg.Discord.GuildIDs, params.Logger),
	}

	b.removeHandler = params.S.AddHandler(func(e *gateway.InteractionCreateEvent) {
		handleInteraction(context.Background(), params.S, b.CmdManager, e, params.Logger)
	})

	return b, nil
}

func parseGuildIDs(raw []string, logger *zap.Logger) []discord.GuildID {
	guildIDs := make([]discord.GuildID, 0, len(raw))
	for _, idStr := range raw {
		sf, err := discord.ParseSnowflake(idStr)
		if err != nil {
			logger.Error("Failed to parse guild ID", zap.String("guild_id", idStr), zap.Error(err))
			continue
		}
		guildIDs = append(guildIDs, discord.GuildID(sf))
	}
	return guildIDs
}

// Start registers slash commands. The session itself is opened by its own
// lifecycle hook.
func (b *Bot) Start(_ context.Context) error {
	if b.CmdManager == nil {
		return errors.New("command manager is not initialized in Bot")
	}
	if len(b.guildIDs) == 0 {
		b.Logger.Warn("No guild IDs configured, slash commands will not be registered")
		return nil
	}

	b.CmdManager.RegisterCommands(b.guildIDs)
	return nil
}

// Stop removes the interaction handler and unregisters slash commands.
func (b *Bot) Stop(_ context.Context) error {
	if b.removeHandler != nil {
		b.removeHandler()
	}
	if b.CmdManager != nil {
		b.CmdManager.UnregisterAllCommands(b.guildIDs)
	}
	return nil
}
