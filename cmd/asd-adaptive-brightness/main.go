// SPDX-License-Identifier: GPL-3.0-only

// Package main provides the entry point for the adaptive brightness daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/asd-adaptive-brightness/internal/backlight"
	"github.com/shini4i/asd-adaptive-brightness/internal/config"
	"github.com/shini4i/asd-adaptive-brightness/internal/dbus"
	"github.com/shini4i/asd-adaptive-brightness/internal/hid"
	"github.com/shini4i/asd-adaptive-brightness/internal/metrics"
	"github.com/shini4i/asd-adaptive-brightness/internal/output"
	"github.com/shini4i/asd-adaptive-brightness/internal/storage"
	"github.com/shini4i/asd-adaptive-brightness/internal/udev"
)

var (
	verbose    bool
	ephemeral  bool
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "asd-adaptive-brightness",
		Short: "Adaptive brightness daemon for backlights and Apple Studio Displays",
		Long: `asd-adaptive-brightness learns the brightness you prefer under the
current ambient light and screen content, and keeps your displays there.

Every manual brightness change is remembered once you stop adjusting. Laptop
backlights and Apple Studio Displays connected over USB are controlled, and a
D-Bus service exposes manual control and the state of each control loop.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep learned preferences in memory only")
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func run() error {
	setupLogging()
	defer func() { log.Info().Msg("Daemon stopped") }()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if ephemeral {
		cfg.Persistent = false
	}

	log.Info().
		Str("config", configPath).
		Dur("interval", cfg.SenseInterval).
		Bool("persistent", cfg.Persistent).
		Str("als", cfg.ALS.Type).
		Msg("Starting asd-adaptive-brightness")

	var opts []output.Option

	if cfg.Persistent {
		backend, err := storage.Open(cfg.Storage, cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		defer closeLogged(backend.Close, "Failed to close storage")
		opts = append(opts, output.WithStorage(backend))
		log.Info().Str("backend", cfg.Storage).Str("dir", cfg.DataDir).Msg("Learned preferences are persisted")
	}

	ambient, closeAmbient, err := newAmbientLight(cfg.ALS)
	if err != nil {
		return fmt.Errorf("failed to set up ambient light sensor: %w", err)
	}
	defer closeAmbient()

	m := metrics.New()
	opts = append(opts, output.WithObserver(m))

	if cfg.StudioDisplays {
		manager := hid.NewManager()
		defer closeLogged(manager.Close, "Failed to close display manager")
		opts = append(opts, output.WithDisplays(manager))
	}

	supervisor := output.NewSupervisor(output.Config{
		Interval:          cfg.SenseInterval,
		Persistent:        cfg.Persistent,
		FatalDeviceErrors: cfg.FatalDeviceErrors,
	}, ambient, newLumaSource(cfg.Luma), opts...)

	// Initialize D-Bus server
	server := dbus.NewServer(supervisor)
	supervisor.SetNotifier(server)
	server.SetDeviceErrorHandler(func(name string, err error) {
		supervisor.Recover(name)
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}
	defer closeLogged(server.Stop, "Failed to stop D-Bus server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	supervisor.Start(ctx)
	defer supervisor.Stop()

	backlights := newBacklightSource(backlight.DefaultRoot, cfg.Backlights, newLogindWriter())
	defer backlights.Close()

	startOutputs(supervisor, backlights)

	if cfg.Metrics.Listen != "" {
		metricsServer, err := metrics.Start(cfg.Metrics.Listen, metrics.NewRouter(m, supervisor))
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer closeLogged(metricsServer.Shutdown, "Failed to stop metrics server")
	}

	// Initialize udev monitor for hot-plug detection
	monitor := udev.NewMonitor(createHotplugHandler(supervisor, backlights))
	monitor.SetRecoveryHandler(createRecoveryHandler(supervisor, backlights))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}
	defer closeLogged(monitor.Stop, "Failed to stop udev monitor")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Daemon running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		log.Info().Msg("Shutting down...")
		return nil
	case err := <-supervisor.Fatal():
		log.Error().Err(err).Msg("Shutting down after unrecoverable error")
		return err
	}
}

func closeLogged(closeFn func() error, msg string) {
	if err := closeFn(); err != nil {
		log.Error().Err(err).Msg(msg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
