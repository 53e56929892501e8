// Package app wires all Lyra subsystems into a running application.
//
// New connects the message log, the action dispatcher, the session
// state machine, and the HTTP listener; Run drives the session loop
// until the context ends; Shutdown tears everything down in order.
// Tests inject doubles through the functional options.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyra-voice/lyra/internal/action"
	"github.com/lyra-voice/lyra/internal/capture"
	"github.com/lyra-voice/lyra/internal/config"
	"github.com/lyra-voice/lyra/internal/msglog"
	"github.com/lyra-voice/lyra/internal/observe"
	"github.com/lyra-voice/lyra/internal/session"
	"github.com/lyra-voice/lyra/pkg/provider/llm"
	"github.com/lyra-voice/lyra/pkg/provider/realtime"
	"github.com/lyra-voice/lyra/pkg/provider/stt"
	"github.com/lyra-voice/lyra/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// slot is not configured. Populated by main via the config entries.
type Providers struct {
	Realtime realtime.Provider
	LLM      llm.Provider
	STT      stt.Recognizer
	TTS      tts.Synthesizer
}

// App owns the subsystem lifetimes for one Lyra process.
type App struct {
	cfg     *config.Config
	machine *session.Machine
	log     *msglog.Log
	server  *http.Server

	source  capture.Source
	opener  action.Opener
	metrics *observe.Metrics

	// closers run in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test
// doubles.
type Option func(*App)

// WithSource injects a capture source instead of the microphone
// process.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithOpener injects an external-view opener instead of the system
// browser.
func WithOpener(o action.Opener) Option {
	return func(a *App) { a.opener = o }
}

// WithMetrics injects metric instruments instead of the process-global
// defaults.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires an App from cfg and the instantiated providers.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.opener == nil {
		a.opener = action.BrowserOpener{}
	}
	if a.source == nil {
		micOpts := []capture.MicOption{capture.WithMicRate(cfg.Audio.CaptureRate)}
		if cfg.Audio.MicDevice != "" {
			micOpts = append(micOpts, capture.WithMicDevice(cfg.Audio.MicDevice))
		}
		a.source = capture.NewFFmpegSource(micOpts...)
	}

	// Durable store first so Recent replays the full history when
	// postgres is configured; the memory ring doubles as fallback.
	var stores []msglog.Store
	if cfg.Log.PostgresDSN != "" {
		pg, err := msglog.ConnectPostgres(ctx, cfg.Log.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: message store: %w", err)
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		stores = append(stores, pg)
		slog.Info("message log persisting to postgres")
	}
	stores = append(stores, msglog.NewMemoryStore(cfg.Log.MaxMessages))

	a.log = msglog.New(a.metrics, stores...)
	a.log.Subscribe(printMessage)

	dispatcher := action.NewDispatcher(a.opener, a.metrics)
	sessionOpts := []session.Option{
		session.WithSystemPrompt(cfg.Session.SystemPrompt),
		session.WithVoice(cfg.Session.Voice),
		session.WithCaptureRate(cfg.Audio.CaptureRate),
		session.WithPlaybackRate(cfg.Audio.PlaybackRate),
		session.WithMetrics(a.metrics),
	}

	switch cfg.Mode {
	case config.ModeStreaming:
		if providers.Realtime == nil {
			return nil, errors.New("app: streaming mode needs a realtime provider")
		}
		a.machine = session.NewStreaming(providers.Realtime, providers.LLM, a.source, a.log, dispatcher, sessionOpts...)
	case config.ModeBatch:
		if providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
			return nil, errors.New("app: batch mode needs stt, llm, and tts providers")
		}
		a.machine = session.NewBatch(providers.STT, providers.LLM, providers.TTS, a.source, a.log, dispatcher, sessionOpts...)
	default:
		return nil, fmt.Errorf("app: unknown mode %q", cfg.Mode)
	}

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", a.handleHealth)
	return mux
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"mode":   string(a.cfg.Mode),
		"state":  a.machine.State().String(),
		"active": a.machine.Active(),
	})
}

// Log exposes the message log, mainly for tests and embedding.
func (a *App) Log() *msglog.Log { return a.log }

// Run serves HTTP and drives the voice session until ctx ends. Batch
// sessions complete after one turn and are restarted for the next one;
// a terminal session failure stops the loop without retry.
func (a *App) Run(ctx context.Context) error {
	go func() {
		slog.Info("http listener ready", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http listener failed", "err", err)
		}
	}()

	for {
		if err := a.machine.Start(ctx); err != nil {
			return fmt.Errorf("app: start session: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.machine.Done():
		}
		if err := a.machine.Err(); err != nil {
			// Surfaced as a system message already. No automatic retry.
			return nil
		}
		if a.cfg.Mode != config.ModeBatch {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Shutdown stops the session, the HTTP listener, and the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	a.stopOnce.Do(func() {
		if err := a.machine.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := a.server.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		for _, closer := range a.closers {
			if err := closer(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
