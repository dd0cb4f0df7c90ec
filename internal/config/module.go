// Package config provides configuration infrastructure and Fx modules.
package config

import (
	"go.uber.org/fx"
)

// Module loads, defaults and validates the YAML config at the supplied path.
var Module = fx.Module("config",
	fx.Provide(LoadConfig),
)
