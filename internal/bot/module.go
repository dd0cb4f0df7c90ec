// Package bot routes Discord interactions to slash commands.
package bot

import (
	"go.uber.org/fx"
)

// Module provides the Bot.
var Module = fx.Module("bot",
	fx.Provide(NewBot),
)
