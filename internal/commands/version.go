package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/diamondburned/arikawa/v3/discord"
	"github.com/diamondburned/arikawa/v3/gateway"
	"github.com/diamondburned/arikawa/v3/session"

	"github.com/Raikerian/go-discord-mixer/internal/config"
)

// AppVersion is the version of the application, set at build time with
// -ldflags "-X github.com/Raikerian/go-discord-mixer/internal/commands.AppVersion=...".
var AppVersion = "dev"

// VersionCommand responds with the build version and the mixing backend.
type VersionCommand struct {
	backend string
	slots   int
}

// NewVersionCommand creates the /version command.
func NewVersionCommand(cfg *config.Config) Command {
	return &VersionCommand{
		backend: cfg.Mixer.Backend,
		slots:   cfg.Mixer.Engine().Slots,
	}
}

func (c *VersionCommand) Name() string {
	return "version"
}

func (c *VersionCommand) Description() string {
	return "Displays the current version of the mixer bot."
}

func (c *VersionCommand) Options() []discord.CommandOption {
	return nil
}

func (c *VersionCommand) content() string {
	return fmt.Sprintf("Version: %s (%s)\nMixer: %s backend, %d slots", AppVersion, runtime.Version(), c.backend, c.slots)
}

func (c *VersionCommand) Execute(_ context.Context, s *session.Session, e *gateway.InteractionCreateEvent, _ *discord.CommandInteraction) error {
	return respond(s, e, c.content())
}
