// Command pwmlive connects a microphone and speaker to a Gemini Live session
// and lets the model drive an LED controller through tool calls.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pwmlive/pwmlive/internal/app"
	"github.com/pwmlive/pwmlive/internal/board"
	"github.com/pwmlive/pwmlive/internal/config"
	"github.com/pwmlive/pwmlive/internal/observe"
	"github.com/pwmlive/pwmlive/pkg/audio"
	"github.com/pwmlive/pwmlive/pkg/audio/portaudio"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "pwmlive.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the log level when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pwmlive: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pwmlive: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("pwmlive starting",
		"version", version,
		"config", *configPath,
		"model", cfg.Live.Model,
		"audio_backend", cfg.Audio.Backend,
		"board_publisher", cfg.Board.Publisher,
		"admin_addr", cfg.Server.AdminAddr,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "pwmlive",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(tctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Devices ───────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltins(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, providers, app.WithLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		_ = providers.Publisher.Close()
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("connecting; press Ctrl+C to stop")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Registry wiring ───────────────────────────────────────────────────────────

// registerBuiltins wires the audio backends and board publishers that ship
// with pwmlive into reg.
func registerBuiltins(reg *config.Registry) {
	reg.RegisterBackend(config.BackendPortAudio, func(cfg config.AudioConfig) (audio.Backend, error) {
		return &portaudio.Backend{FramesPerBuffer: cfg.FramesPerBuffer}, nil
	})
	reg.RegisterBackend(config.BackendNone, func(config.AudioConfig) (audio.Backend, error) {
		return nil, nil
	})

	reg.RegisterPublisher(config.PublisherLog, func(config.BoardConfig) (board.Publisher, error) {
		return board.NewLogPublisher(slog.Default()), nil
	})
	reg.RegisterPublisher(config.PublisherMQTT, func(cfg config.BoardConfig) (board.Publisher, error) {
		pub, err := board.NewMQTTPublisher(board.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Timeout:     cfg.MQTT.ConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		return board.NewBreakerPublisher(pub, board.BreakerOptions{}), nil
	})
}

// buildProviders instantiates the configured backend and publisher.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	backend, err := reg.CreateBackend(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio backend: %w", err)
	}
	pub, err := reg.CreatePublisher(cfg.Board)
	if err != nil {
		return nil, fmt.Errorf("board publisher: %w", err)
	}
	return &app.Providers{Backend: backend, Publisher: pub}, nil
}
