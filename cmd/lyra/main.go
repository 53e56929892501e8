// Command lyra is the main entry point for the Lyra voice assistant.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/lyra-voice/lyra/internal/app"
	"github.com/lyra-voice/lyra/internal/config"
	"github.com/lyra-voice/lyra/internal/observe"
	"github.com/lyra-voice/lyra/pkg/provider/llm/anyllm"
	geminilive "github.com/lyra-voice/lyra/pkg/provider/realtime/gemini"
	"github.com/lyra-voice/lyra/pkg/provider/stt/whisper"
	"github.com/lyra-voice/lyra/pkg/provider/tts/coqui"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lyra: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lyra: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("lyra starting",
		"config", *configPath,
		"mode", cfg.Mode,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "lyra"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the provider slots the configured mode
// needs. Slots without a configured name stay nil.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	providers := &app.Providers{}

	if entry := cfg.Providers.Realtime; entry.Name != "" {
		switch entry.Name {
		case "gemini-live":
			var opts []geminilive.Option
			if entry.Model != "" {
				opts = append(opts, geminilive.WithModel(entry.Model))
			}
			if entry.BaseURL != "" {
				opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
			}
			providers.Realtime = geminilive.New(entry.APIKey, opts...)
		default:
			return nil, fmt.Errorf("unknown realtime provider %q", entry.Name)
		}
	}

	if entry := cfg.Providers.LLM; entry.Name != "" {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New(entry.Name, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		providers.LLM = p
	}

	if entry := cfg.Providers.STT; entry.Name != "" {
		switch entry.Name {
		case "whisper-native":
			var opts []whisper.Option
			if entry.Language != "" {
				opts = append(opts, whisper.WithLanguage(entry.Language))
			}
			r, err := whisper.New(entry.ModelPath, opts...)
			if err != nil {
				return nil, err
			}
			providers.STT = r
		default:
			return nil, fmt.Errorf("unknown stt provider %q", entry.Name)
		}
	}

	if entry := cfg.Providers.TTS; entry.Name != "" {
		switch entry.Name {
		case "coqui":
			var opts []coqui.Option
			if entry.Language != "" {
				opts = append(opts, coqui.WithLanguage(entry.Language))
			}
			opts = append(opts, coqui.WithOutputSampleRate(cfg.Audio.PlaybackRate))
			s, err := coqui.New(entry.BaseURL, opts...)
			if err != nil {
				return nil, err
			}
			providers.TTS = s
		default:
			return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
		}
	}

	return providers, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level.Level(),
	}))
}
