// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-discord-mixer/internal/bot"
)

// Application wraps the fx app.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))
	return &Application{app: fx.New(options...)}
}

// Err reports a dependency graph error found while building the app.
func (a *Application) Err() error {
	return a.app.Err()
}

// Start runs every OnStart hook: the Discord session opens, then slash
// commands are registered.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop gracefully stops the application. Mixing sessions end, voice
// channels are left and the recordings are finalized.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

func registerLifecycleHooks(lc fx.Lifecycle, b *bot.Bot, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := b.Start(ctx); err != nil {
				logger.Error("Failed to start bot", zap.Error(err))
				return err
			}
			logger.Info("Application started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := b.Stop(ctx); err != nil {
				logger.Error("Failed to stop bot", zap.Error(err))
				return err
			}
			logger.Info("Application stopped")
			return nil
		},
	})
}
