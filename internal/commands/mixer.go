package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diamondburned/arikawa/v3/api"
	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"github.com/diamondburned/arikawa/v3/state"
	"github.com/diamondburned/arikawa/v3/utils/json/option"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/voice"
	"github.com/Raikerian/go-discord-mixer/pkg/audiomixer"
)

const joinTimeout = 15 * time.Second

// mixerService is satisfied by *voice.Service.
type mixerService interface {
	Start(ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID) (*voice.Session, error)
	Stop(ctx context.Context, guildID discord.GuildID) error
	Reset(guildID discord.GuildID) error
	Status(guildID discord.GuildID) (voice.SessionStatus, error)
}

// voiceStateLookup is satisfied by *state.State.
type voiceStateLookup interface {
	VoiceState(guildID discord.GuildID, userID discord.UserID) (*discord.VoiceState, error)
}

// MixerCommand controls the guild's mixing session.
type MixerCommand struct {
	logger  *zap.Logger
	service mixerService
	states  voiceStateLookup
}

// NewMixerCommand creates the /mixer command.
func NewMixerCommand(logger *zap.Logger, svc *voice.Service, st *state.State) *MixerCommand {
	return &MixerCommand{
		logger:  logger.Named("mixer_command"),
		service: svc,
		states:  st,
	}
}

func (c *MixerCommand) Name() string {
	return "mixer"
}

func (c *MixerCommand) Description() string {
	return "Mix everyone in your voice channel into one stream"
}

func (c *MixerCommand) Options() []discord.CommandOption {
	return []discord.CommandOption{
		&discord.StringOption{
			OptionName:  "action",
			Description: "Action to perform",
			Required:    true,
			Choices: []discord.StringChoice{
				{Name: "join", Value: "join"},
				{Name: "leave", Value: "leave"},
				{Name: "status", Value: "status"},
				{Name: "reset", Value: "reset"},
			},
		},
	}
}

func (c *MixerCommand) Execute(ctx context.Context, s *session.Session, e *gateway.InteractionCreateEvent, data *discord.CommandInteraction) error {
	var action string
	for _, opt := range data.Options {
		if opt.Name == "action" {
			action = opt.String()
		}
	}

	if !e.GuildID.IsValid() {
		return respond(s, e, "The mixer only works in servers.")
	}

	if action != "join" {
		return respond(s, e, c.run(ctx, e.GuildID, e.SenderID(), action))
	}

	channelID, msg := c.callerChannel(e.GuildID, e.SenderID())
	if msg != "" {
		return respond(s, e, msg)
	}
	if err := respond(s, e, fmt.Sprintf("Joining <#%s>...", channelID)); err != nil {
		return err
	}

	// Joining a voice channel can outlast the interaction deadline, so the
	// result goes out as a follow-up message.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()

		result := c.join(ctx, e.GuildID, channelID)
		if _, err := s.SendMessage(e.ChannelID, result); err != nil {
			c.logger.Error("Failed to send join result", zap.Error(err))
		}
	}()
	return nil
}

// run executes every action except join and returns the reply.
func (c *MixerCommand) run(ctx context.Context, guildID discord.GuildID, userID discord.UserID, action string) string {
	switch action {
	case "leave":
		err := c.service.Stop(ctx, guildID)
		switch {
		case errors.Is(err, voice.ErrNoSession):
			return "The mixer is not running in this server."
		case err != nil:
			c.logger.Error("Failed to stop mixing session",
				zap.String("guild_id", guildID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err))
			return "Stopped the mixer with errors: " + err.Error()
		}
		return "Stopped mixing."

	case "reset":
		if err := c.service.Reset(guildID); err != nil {
			if errors.Is(err, voice.ErrNoSession) {
				return "The mixer is not running in this server."
			}
			return "Failed to reset the mixer: " + err.Error()
		}
		return "Mixer reset. Everyone will be re-attached shortly."

	case "status":
		st, err := c.service.Status(guildID)
		if err != nil {
			if errors.Is(err, voice.ErrNoSession) {
				return "The mixer is not running in this server."
			}
			return "Failed to read mixer status: " + err.Error()
		}
		return formatStatus(st, time.Now())

	default:
		return "Unknown action: " + action
	}
}

// callerChannel finds the voice channel of the invoking user. A non-empty
// message means there is none.
func (c *MixerCommand) callerChannel(guildID discord.GuildID, userID discord.UserID) (discord.ChannelID, string) {
	vs, err := c.states.VoiceState(guildID, userID)
	if err != nil || vs == nil || !vs.ChannelID.IsValid() {
		c.logger.Debug("Caller is not in a voice channel",
			zap.String("guild_id", guildID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return 0, "Join a voice channel first."
	}
	return vs.ChannelID, ""
}

func (c *MixerCommand) join(ctx context.Context, guildID discord.GuildID, channelID discord.ChannelID) string {
	_, err := c.service.Start(ctx, guildID, channelID)
	switch {
	case errors.Is(err, voice.ErrSessionActive):
		return "The mixer is already running in this server."
	case err != nil:
		c.logger.Error("Failed to start mixing session",
			zap.String("guild_id", guildID.String()),
			zap.String("channel_id", channelID.String()),
			zap.Error(err))
		return "Failed to start the mixer: " + err.Error()
	}
	return fmt.Sprintf("Mixing <#%s>.", channelID)
}

func formatStatus(st voice.SessionStatus, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mixing <#%s> for %s\n", st.ChannelID, now.Sub(st.StartedAt).Round(time.Second))

	switch {
	case st.Mixer.Running && st.Mixer.PID > 0:
		fmt.Fprintf(&b, "Process: running (pid %d)\n", st.Mixer.PID)
	case st.Mixer.Running:
		b.WriteString("Process: running\n")
	default:
		b.WriteString("Process: idle\n")
	}

	fmt.Fprintf(&b, "Slots: %d/%d\n", len(st.Mixer.Slots), st.Mixer.Capacity)
	for _, s := range st.Mixer.Slots {
		who := s.ID
		if s.Kind == audiomixer.KindParticipant {
			who = "<@" + s.ID + ">"
		}
		fmt.Fprintf(&b, "- slot %d: %s (%s, %d queued)\n", s.Index, who, s.Kind, s.QueuedFrames)
	}

	if st.Playback {
		b.WriteString("Playback: on\n")
	}
	if st.RecordingPath != "" {
		fmt.Fprintf(&b, "Recording: `%s`\n", st.RecordingPath)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func respond(s *session.Session, e *gateway.InteractionCreateEvent, content string) error {
	return s.RespondInteraction(e.ID, e.Token, api.InteractionResponse{
		Type: api.MessageInteractionWithSource,
		Data: &api.InteractionResponseData{
			Content: option.NewNullableString(content),
		},
	})
}
