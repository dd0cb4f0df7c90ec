// Package main provides the entry point for the Discord voice mixer bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/Raikerian/go-discord-mixer/internal/app"
	"github.com/Raikerian/go-discord-mixer/internal/bot"
	"github.com/Raikerian/go-discord-mixer/internal/commands"
	"github.com/Raikerian/go-discord-mixer/internal/config"
	"github.com/Raikerian/go-discord-mixer/internal/discord"
	"github.com/Raikerian/go-discord-mixer/internal/infrastructure"
	"github.com/Raikerian/go-discord-mixer/internal/observe"
	"github.com/Raikerian/go-discord-mixer/internal/voice"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	application := app.New(
		modules(*configPath),
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
	)

	if err := application.Err(); err != nil {
		fmt.Printf("Failed to build application: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	err := application.Start(startCtx)
	cancelStart()
	if err != nil {
		fmt.Printf("Failed to start application: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	fmt.Printf("Received signal: %s, initiating shutdown.\n", sig)

	// Sessions need the mixer kill grace plus time to leave voice.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = application.Stop(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Printf("Error during shutdown: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Application has shut down gracefully.")
}

// modules assembles the application graph.
func modules(configPath string) fx.Option {
	return fx.Options(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,
		observe.Module,

		// External service modules
		discord.Module,

		// Application modules
		voice.Module,
		commands.Module,
		bot.Module,

		fx.Supply(configPath),
		fx.Supply(fx.Annotated{Name: "version", Target: commands.AppVersion}),
	)
}
