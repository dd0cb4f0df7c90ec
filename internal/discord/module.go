// Package discord opens the gateway session the mixer bot runs on and keeps
// the state cache its voice membership is read from.
package discord

import (
	"context"
	"errors"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"
	"github.com/diamondburned/arikawa/v3/state"
	"github.com/diamondburned/arikawa/v3/state/store/defaultstore"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
)

// Intents the bot needs: guild and channel lookups for /mixer join, command
// interactions, and the voice states that decide who gets mixed.
const Intents = gateway.IntentGuilds |
	gateway.IntentGuildIntegrations |
	gateway.IntentGuildVoiceStates

// Module provides the gateway session, its state cache and the application id.
var Module = fx.Module("discord",
	fx.Provide(
		NewGateway,
		ApplicationID,
	),
)

// GatewayParams holds dependencies for NewGateway.
type GatewayParams struct {
	fx.In
	Cfg    *config.Config
	LC     fx.Lifecycle
	Logger *zap.Logger
}

// Gateway is the pair of handles the rest of the bot consumes. Commands
// register through Session; voice membership is read from State.
type Gateway struct {
	fx.Out
	Session *session.Session
	State   *state.State
}

// NewGateway builds a session with the mixer's intents and a state cache over
// it. The connection opens and closes with the app.
func NewGateway(params GatewayParams) (Gateway, error) {
	token := params.Cfg.Discord.BotToken
	if token == "" {
		return Gateway{}, errors.New("discord bot token is not set in config")
	}
	logger := params.Logger.Named("discord")

	s := session.New("Bot " + token)
	s.AddIntents(Intents)

	// The state cache hooks the session's handlers, so voice states are
	// tracked from the first READY onwards.
	st := state.NewFromSession(s, defaultstore.New())
	st.AddHandler(func(e *gateway.ReadyEvent) {
		logger.Info("Gateway ready",
			zap.Stringer("user_id", e.User.ID),
			zap.String("username", e.User.Username),
			zap.Int("guilds", len(e.Guilds)))
	})

	params.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Connecting to the Discord gateway")
			return s.Open(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Disconnecting from the Discord gateway")
			return s.Close()
		},
	})

	return Gateway{Session: s, State: st}, nil
}

// ApplicationID returns the configured application id slash commands are
// registered under.
func ApplicationID(cfg *config.Config) (discord.AppID, error) {
	id := cfg.Discord.ApplicationID
	if id == nil || !id.IsValid() {
		return 0, errors.New("discord application id is not set in config")
	}
	return discord.AppID(*id), nil
}
