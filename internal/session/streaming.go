package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyra-voice/lyra/internal/action"
	"github.com/lyra-voice/lyra/internal/capture"
	"github.com/lyra-voice/lyra/internal/msglog"
	"github.com/lyra-voice/lyra/internal/playback"
	"github.com/lyra-voice/lyra/internal/transcript"
	"github.com/lyra-voice/lyra/pkg/audio"
	"github.com/lyra-voice/lyra/pkg/provider/realtime"
)

// streamingPipeline holds one full-duplex realtime session open.
// Capture frames flow continuously upstream; the service decides turn
// boundaries and streams back audio, transcription fragments, tool
// calls, and turn markers.
type streamingPipeline struct {
	m        *Machine
	provider realtime.Provider

	mu     sync.Mutex
	handle realtime.SessionHandle
}

var _ pipeline = (*streamingPipeline)(nil)

func (p *streamingPipeline) setHandle(h realtime.SessionHandle) {
	p.mu.Lock()
	p.handle = h
	p.mu.Unlock()
}

// sendLive routes a text turn over the open session. The reply comes
// back through the event stream like any spoken turn.
func (p *streamingPipeline) sendLive(text string) (bool, error) {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return false, nil
	}
	return true, h.SendText(text)
}

func (p *streamingPipeline) run(ctx context.Context, gen uint64) error {
	m := p.m

	handle, err := p.provider.Connect(ctx, realtime.SessionConfig{
		Instructions: m.prompt,
		Voice:        m.voice,
		Tools:        action.Declarations(),
	})
	if err != nil {
		return fmt.Errorf("%w: connect: %v", ErrService, err)
	}
	p.setHandle(handle)
	defer p.setHandle(nil)
	defer handle.Close()

	sink, stopSink, err := m.newSink(ctx)
	if err != nil {
		return fmt.Errorf("%w: open playback: %v", ErrDevice, err)
	}
	defer stopSink()

	sched := playback.New(sink,
		playback.WithRate(m.playbackRate),
		playback.WithMetrics(m.metrics),
		playback.WithSpeakingFunc(func(speaking bool) {
			if speaking {
				m.setState(gen, StateSpeaking)
			} else {
				m.setState(gen, StateListening)
			}
		}),
	)
	defer sched.Reset()

	enc := capture.NewEncoder(handle.SendAudioChunk, m.metrics)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		err := m.source.Start(gctx, enc.HandleFrame)
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("%w: capture: %v", ErrDevice, err)
		}
		return nil
	})
	g.Go(func() error {
		// The event loop decides when the session is over; stopping
		// runCtx releases the capture goroutine.
		defer stop()
		return p.eventLoop(gctx, gen, handle, sched, sink)
	})
	return g.Wait()
}

// eventLoop consumes the session's ordered event stream until it ends.
func (p *streamingPipeline) eventLoop(ctx context.Context, gen uint64, handle realtime.SessionHandle, sched *playback.Scheduler, sink Sink) error {
	m := p.m
	var user, assistant transcript.Aggregator
	var turnStarted time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-handle.Events():
			if !ok {
				return fmt.Errorf("%w: event stream ended", ErrService)
			}
			switch ev := ev.(type) {
			case realtime.Opened:
				m.setState(gen, StateListening)

			case realtime.AudioChunk:
				if err := sched.Enqueue(ev.Data, sink.Now()); err != nil {
					if errors.Is(err, audio.ErrDecode) {
						if m.metrics != nil {
							m.metrics.DecodeDrops.Add(ctx, 1)
						}
						slog.Warn("session: dropped malformed audio chunk")
					} else {
						slog.Warn("session: enqueue failed", "err", err)
					}
					continue
				}
				if m.metrics != nil {
					m.metrics.ChunksPlayed.Add(ctx, 1)
				}

			case realtime.UserFragment:
				if turnStarted.IsZero() {
					turnStarted = time.Now()
				}
				user.Append(ev.Text)

			case realtime.AssistantFragment:
				if turnStarted.IsZero() {
					turnStarted = time.Now()
				}
				assistant.Append(ev.Text)

			case realtime.ToolCall:
				result := m.dispatcher.HandleToolCall(ctx, ev.Name, ev.Args)
				if err := handle.SendToolResponse(ev.ID, ev.Name, result); err != nil {
					slog.Warn("session: send tool response failed", "tool", ev.Name, "err", err)
				}

			case realtime.TurnComplete:
				if text, ok := user.Flush(); ok {
					m.log.Append(ctx, msglog.RoleUser, text)
				}
				if text, ok := assistant.Flush(); ok {
					m.log.Append(ctx, msglog.RoleAssistant, text)
				}
				if !turnStarted.IsZero() {
					if m.metrics != nil {
						m.metrics.TurnDuration.Record(ctx, time.Since(turnStarted).Seconds())
					}
					turnStarted = time.Time{}
				}

			case realtime.Interrupted:
				// The user barged in. The abandoned reply is discarded
				// without being finalized; already scheduled playback
				// units finish on their own.
				assistant.Reset()
				turnStarted = time.Time{}

			case realtime.Closed:
				if ev.Err != nil {
					return fmt.Errorf("%w: %v", ErrService, ev.Err)
				}
				return nil
			}
		}
	}
}
