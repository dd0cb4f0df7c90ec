package voice

import (
	"context"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/state"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/config"
)

var Module = fx.Module("voice",
	fx.Provide(
		NewDiscordVoiceManager,
		NewService,
	),
)

// ServiceParams holds dependencies for NewService.
type ServiceParams struct {
	fx.In
	Logger        *zap.Logger
	Config        *config.Config
	State         *state.State
	VoiceManager  DiscordVoiceManager
	MeterProvider metric.MeterProvider
	LC            fx.Lifecycle
}

// NewService creates the voice mixing service and wires it to gateway voice
// state updates.
func NewService(p ServiceParams) *Service {
	self := func() (discord.UserID, error) {
		me, err := p.State.Me()
		if err != nil {
			return 0, err
		}
		return me.ID, nil
	}

	s := newService(p.Logger, p.Config, p.State, self, p.VoiceManager, p.MeterProvider)
	remove := p.State.AddHandler(s.HandleVoiceStateUpdate)

	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			remove()
			return s.Shutdown(ctx)
		},
	})

	return s
}
