// Package whisper implements stt.Recognizer with the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/lyra-voice/lyra/pkg/provider/stt"
)

// Compile-time assertion that Recognizer satisfies stt.Recognizer.
var _ stt.Recognizer = (*Recognizer)(nil)

const (
	defaultLanguage = "en"

	// requiredRate is the only sample rate whisper.cpp accepts.
	requiredRate = 16000
)

// Recognizer implements stt.Recognizer. The model is loaded once at
// startup and shared across calls; each Transcribe creates its own
// whisper context, so concurrent calls do not interfere.
type Recognizer struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code for transcription (e.g.
// "en", "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// New creates a Recognizer loading the whisper.cpp model from the
// given file path. The caller must call Close when the recognizer is
// no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Transcribe implements stt.Recognizer. samples must be mono float32
// at 16 kHz; whisper.cpp accepts no other rate.
func (r *Recognizer) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if sampleRate != requiredRate {
		return "", fmt.Errorf("whisper: sample rate %d not supported; need %d", sampleRate, requiredRate)
	}
	if len(samples) == 0 {
		return "", nil
	}

	// Each context is not thread-safe, but the model can be shared.
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", r.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
