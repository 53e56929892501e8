package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lyra-voice/lyra/internal/msglog"
	"github.com/lyra-voice/lyra/internal/observe"
	"github.com/lyra-voice/lyra/internal/playback"
	"github.com/lyra-voice/lyra/pkg/audio"
	"github.com/lyra-voice/lyra/pkg/provider/llm"
	"github.com/lyra-voice/lyra/pkg/provider/stt"
	"github.com/lyra-voice/lyra/pkg/provider/tts"
)

// Endpointing thresholds for the batch recording pass. A turn ends
// after trailing silence once some speech has been heard, or at the
// hard utterance cap.
const (
	endpointSilenceRMS   = 0.015
	endpointMinSpeech    = 200 * time.Millisecond
	endpointTrailing     = 800 * time.Millisecond
	endpointMaxUtterance = 30 * time.Second
)

// batchPipeline runs one half-duplex turn per session: record an
// utterance, recognize it locally, ask the chat model for a reply,
// scan the reply for an action intent, and speak the answer.
type batchPipeline struct {
	m          *Machine
	recognizer stt.Recognizer
	synth      tts.Synthesizer
}

var _ pipeline = (*batchPipeline)(nil)

// sendLive reports no live route; batch text turns are one-shot chat
// requests.
func (p *batchPipeline) sendLive(string) (bool, error) { return false, nil }

func (p *batchPipeline) run(ctx context.Context, gen uint64) error {
	m := p.m

	ctx, span := observe.StartSpan(ctx, "session.batch_turn")
	defer span.End()

	m.setState(gen, StateListening)
	samples, err := p.record(ctx)
	if err != nil {
		return fmt.Errorf("%w: capture: %v", ErrDevice, err)
	}
	if ctx.Err() != nil || len(samples) == 0 {
		return nil
	}

	m.setState(gen, StateThinking)
	turnStarted := time.Now()

	recStarted := time.Now()
	text, err := p.recognizer.Transcribe(ctx, samples, m.captureRate)
	if err != nil {
		return fmt.Errorf("%w: recognize: %v", ErrService, err)
	}
	if m.metrics != nil {
		m.metrics.RecognitionDuration.Record(ctx, time.Since(recStarted).Seconds())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Info("session: recognized nothing, turn skipped")
		return nil
	}
	m.log.Append(ctx, msglog.RoleUser, text)

	resp, err := m.chat.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: m.prompt,
		Messages:     m.history(ctx, text),
	})
	if err != nil {
		return fmt.Errorf("%w: complete: %v", ErrService, err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return nil
	}

	if desc, ok := m.scanner.Scan(reply); ok {
		m.dispatcher.Dispatch(ctx, desc)
	}
	m.log.Append(ctx, msglog.RoleAssistant, reply)
	if m.metrics != nil {
		m.metrics.TurnDuration.Record(ctx, time.Since(turnStarted).Seconds())
	}

	return p.speak(ctx, gen, reply)
}

// record captures one utterance and returns its mono float samples.
// Recording stops at the endpoint, on session cancellation, or when
// the source stream ends.
func (p *batchPipeline) record(ctx context.Context) ([]float32, error) {
	recCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		mu      sync.Mutex
		samples []float32
		total   time.Duration
		speech  time.Duration
		silence time.Duration
	)
	err := p.m.source.Start(recCtx, func(frame audio.Frame) {
		mu.Lock()
		defer mu.Unlock()
		samples = append(samples, frame.Samples...)
		d := frame.Duration()
		total += d
		if rms(frame.Samples) >= endpointSilenceRMS {
			speech += d
			silence = 0
		} else if speech > 0 {
			silence += d
		}
		if (speech >= endpointMinSpeech && silence >= endpointTrailing) || total >= endpointMaxUtterance {
			stop()
		}
	})
	if err != nil && recCtx.Err() == nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, nil
	}
	mu.Lock()
	defer mu.Unlock()
	return samples, nil
}

// speak synthesizes reply and schedules the chunks, waiting for the
// playback timeline to drain before returning.
func (p *batchPipeline) speak(ctx context.Context, gen uint64, reply string) error {
	m := p.m

	sink, stopSink, err := m.newSink(ctx)
	if err != nil {
		return fmt.Errorf("%w: open playback: %v", ErrDevice, err)
	}
	defer stopSink()

	drained := make(chan struct{}, 1)
	sched := playback.New(sink,
		playback.WithRate(m.playbackRate),
		playback.WithMetrics(m.metrics),
		playback.WithSpeakingFunc(func(speaking bool) {
			if speaking {
				m.setState(gen, StateSpeaking)
				return
			}
			select {
			case drained <- struct{}{}:
			default:
			}
		}),
	)

	synthStarted := time.Now()
	chunks, err := p.synth.Synthesize(ctx, reply, m.voice)
	if err != nil {
		return fmt.Errorf("%w: synthesize: %v", ErrService, err)
	}
	for pcm := range chunks {
		if err := sched.Enqueue(audio.EncodeChunk(pcm), sink.Now()); err != nil {
			slog.Warn("session: enqueue reply chunk failed", "err", err)
			continue
		}
		if m.metrics != nil {
			m.metrics.ChunksPlayed.Add(ctx, 1)
		}
	}
	if m.metrics != nil {
		m.metrics.SynthesisDuration.Record(ctx, time.Since(synthStarted).Seconds())
	}

	for sched.Live() > 0 {
		select {
		case <-drained:
		case <-ctx.Done():
			sched.Reset()
			return nil
		}
	}
	return nil
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
