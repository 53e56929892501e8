// Package playback schedules decoded audio chunks for gapless,
// in-order playback on a sink.
//
// Chunks arrive as base64 PCM16 text and are placed on a single
// monotonic timeline: each unit starts at the later of the end of the
// previous unit and the current time. The scheduler tracks the set of
// live (scheduled but unfinished) units and reports "speaking" edges
// whenever that set transitions between empty and non-empty.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lyra-voice/lyra/internal/observe"
	"github.com/lyra-voice/lyra/pkg/audio"
)

// Sink is the playback output collaborator. Play begins frame at start
// on the sink's timeline and calls done exactly once when the frame has
// finished playing. Implementations must not call done before Play
// returns control to the scheduler.
type Sink interface {
	Play(frame audio.Frame, start time.Duration, done func()) error
}

// Scheduler owns the playback timeline for one session.
// All methods are safe for concurrent use.
type Scheduler struct {
	sink    Sink
	rate    int
	metrics *observe.Metrics

	mu         sync.Mutex
	gen        uint64
	seq        uint64
	live       map[uint64]struct{}
	next       time.Duration // end of the last scheduled unit
	onSpeaking func(bool)
}

// Option is a functional option for configuring a Scheduler.
type Option func(*Scheduler)

// WithRate sets the sample rate decoded chunks are interpreted at.
// Defaults to audio.PlaybackRate.
func WithRate(rate int) Option {
	return func(s *Scheduler) { s.rate = rate }
}

// WithSpeakingFunc registers a callback invoked with true when the
// live-unit set becomes non-empty and false when it drains. The
// callback fires only on those edges, never on interior enqueues or
// completions.
func WithSpeakingFunc(fn func(bool)) Option {
	return func(s *Scheduler) { s.onSpeaking = fn }
}

// WithMetrics attaches metric instruments tracking the live-unit
// count. nil disables recording.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = metrics }
}

// New creates a Scheduler that plays through sink.
func New(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink: sink,
		rate: audio.PlaybackRate,
		live: make(map[uint64]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue decodes chunk and schedules it at max(next start, now).
// Malformed chunks are rejected with audio.ErrDecode and leave the
// timeline untouched; zero-length chunks are dropped the same way but
// without error. now is the current position on the sink's timeline.
func (s *Scheduler) Enqueue(chunk string, now time.Duration) error {
	pcm, err := audio.DecodeChunk(chunk)
	if err != nil {
		return fmt.Errorf("playback: enqueue: %w", err)
	}
	frame := audio.ToFrame(pcm, s.rate)
	if len(frame.Samples) == 0 {
		return nil
	}

	s.mu.Lock()
	gen := s.gen
	prev := s.next
	start := prev
	if now > start {
		start = now
	}
	end := start + frame.Duration()
	s.next = end
	id := s.seq
	s.seq++
	s.live[id] = struct{}{}
	started := len(s.live) == 1
	fn := s.onSpeaking
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LiveUnits.Add(context.Background(), 1)
	}
	if started && fn != nil {
		fn(true)
	}

	if err := s.sink.Play(frame, start, func() { s.finish(gen, id) }); err != nil {
		// The unit never reached the sink; give its slot back so the
		// next unit does not schedule after a silent gap. Skipped when
		// a later unit already claimed the cursor.
		s.mu.Lock()
		if gen == s.gen && s.next == end {
			s.next = prev
		}
		s.mu.Unlock()
		s.finish(gen, id)
		return fmt.Errorf("playback: enqueue: %w", err)
	}
	return nil
}

// finish removes a completed unit. Completions from before the last
// Reset carry a stale generation and are ignored.
func (s *Scheduler) finish(gen, id uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.live, id)
	stopped := len(s.live) == 0
	fn := s.onSpeaking
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.LiveUnits.Add(context.Background(), -1)
	}
	if stopped && fn != nil {
		fn(false)
	}
}

// Live reports the number of scheduled but unfinished units.
func (s *Scheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Reset clears the timeline and the live-unit set and invalidates
// completion callbacks from units scheduled before the call. Frames
// already handed to the sink are not silenced; they play out, but
// their completions no longer touch scheduler state.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.gen++
	dropped := len(s.live)
	s.live = make(map[uint64]struct{})
	s.next = 0
	fn := s.onSpeaking
	s.mu.Unlock()

	if s.metrics != nil && dropped > 0 {
		s.metrics.LiveUnits.Add(context.Background(), int64(-dropped))
	}
	if dropped > 0 && fn != nil {
		fn(false)
	}
}
