// Package session implements the voice-session state machine: the
// coordinator that owns the capture stream, the inference
// collaborator, the playback scheduler, and the message log for one
// conversation at a time.
//
// Two pipelines exist. The streaming pipeline holds a full-duplex
// realtime session open and follows the service's turn boundaries. The
// batch pipeline records one utterance, recognizes it locally, asks a
// chat model for a reply, and synthesizes the answer. Both report
// through the same state surface: Idle, Listening, Thinking, Speaking.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lyra-voice/lyra/internal/action"
	"github.com/lyra-voice/lyra/internal/capture"
	"github.com/lyra-voice/lyra/internal/intent"
	"github.com/lyra-voice/lyra/internal/msglog"
	"github.com/lyra-voice/lyra/internal/observe"
	"github.com/lyra-voice/lyra/internal/playback"
	"github.com/lyra-voice/lyra/pkg/audio"
	"github.com/lyra-voice/lyra/pkg/provider/llm"
	"github.com/lyra-voice/lyra/pkg/provider/realtime"
	"github.com/lyra-voice/lyra/pkg/provider/stt"
	"github.com/lyra-voice/lyra/pkg/provider/tts"
)

// Failure classes. Decode failures are handled inline (the chunk is
// dropped and counted); these two terminate the session and surface as
// a single system message.
var (
	// ErrDevice marks capture or playback device failures.
	ErrDevice = errors.New("session: device failure")

	// ErrService marks inference or transport failures.
	ErrService = errors.New("session: service failure")
)

// ErrActive is returned by Start while a session is already running.
var ErrActive = errors.New("session: already active")

// historyDepth bounds how much logged conversation is replayed into
// one-shot chat requests.
const historyDepth = 16

// Sink is the playback output a session schedules onto. Now reports
// the current position on the sink's own timeline so enqueues can be
// anchored against it.
type Sink interface {
	playback.Sink
	Now() time.Duration
}

// SinkFactory opens a playback sink for one session. The returned stop
// function releases the device.
type SinkFactory func(ctx context.Context) (Sink, func() error, error)

// pipeline is the mode-specific half of a Machine.
type pipeline interface {
	// run drives one session until ctx is cancelled, the pipeline
	// completes, or a terminal failure occurs.
	run(ctx context.Context, gen uint64) error

	// sendLive injects a text turn into a running session. ok is false
	// when the pipeline has no live route and the machine should fall
	// back to a one-shot chat request.
	sendLive(text string) (ok bool, err error)
}

// Machine is the voice-session state machine. One Machine owns the
// capture device and at most one active session at a time; all methods
// are safe for concurrent use.
type Machine struct {
	prompt       string
	voice        string
	captureRate  int
	playbackRate int

	source     capture.Source
	log        *msglog.Log
	dispatcher *action.Dispatcher
	chat       llm.Provider
	metrics    *observe.Metrics
	newSink    SinkFactory
	scanner    *intent.Scanner
	tools      []llm.ToolDefinition

	pipe pipeline

	mu      sync.Mutex
	gen     uint64
	state   State
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error
	onState func(State)
}

// Option is a functional option for configuring a Machine.
type Option func(*Machine)

// WithSystemPrompt sets the persona instruction sent with every
// session setup and chat request.
func WithSystemPrompt(prompt string) Option {
	return func(m *Machine) { m.prompt = prompt }
}

// WithVoice selects the synthesis voice.
func WithVoice(voice string) Option {
	return func(m *Machine) { m.voice = voice }
}

// WithCaptureRate sets the capture sample rate. Defaults to
// audio.CaptureRate.
func WithCaptureRate(rate int) Option {
	return func(m *Machine) { m.captureRate = rate }
}

// WithPlaybackRate sets the playback sample rate. Defaults to
// audio.PlaybackRate.
func WithPlaybackRate(rate int) Option {
	return func(m *Machine) { m.playbackRate = rate }
}

// WithStateFunc registers a callback invoked on every state change.
func WithStateFunc(fn func(State)) Option {
	return func(m *Machine) { m.onState = fn }
}

// WithSinkFactory overrides how playback sinks are opened. The default
// launches the local player process at the playback rate.
func WithSinkFactory(f SinkFactory) Option {
	return func(m *Machine) { m.newSink = f }
}

// WithMetrics attaches metric instruments. nil disables recording.
func WithMetrics(metrics *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = metrics }
}

func newMachine(source capture.Source, log *msglog.Log, dispatcher *action.Dispatcher, chat llm.Provider, opts []Option) *Machine {
	m := &Machine{
		captureRate:  audio.CaptureRate,
		playbackRate: audio.PlaybackRate,
		source:       source,
		log:          log,
		dispatcher:   dispatcher,
		chat:         chat,
		state:        StateIdle,
	}
	for _, o := range opts {
		o(m)
	}
	if m.newSink == nil {
		rate := m.playbackRate
		m.newSink = func(ctx context.Context) (Sink, func() error, error) {
			return playback.StartPlayer(ctx, rate)
		}
	}
	return m
}

// NewStreaming creates a Machine driving the full-duplex realtime
// pipeline. chat handles text turns issued while no session is active
// and may be nil to disable them.
func NewStreaming(provider realtime.Provider, chat llm.Provider, source capture.Source, log *msglog.Log, dispatcher *action.Dispatcher, opts ...Option) *Machine {
	m := newMachine(source, log, dispatcher, chat, opts)
	m.tools = action.Declarations()
	m.pipe = &streamingPipeline{m: m, provider: provider}
	return m
}

// NewBatch creates a Machine driving the half-duplex
// record-recognize-reply-speak pipeline. The batch backend has no
// structured function-calling contract, so tool intents are recovered
// from reply text by the intent scanner instead.
func NewBatch(recognizer stt.Recognizer, chat llm.Provider, synth tts.Synthesizer, source capture.Source, log *msglog.Log, dispatcher *action.Dispatcher, opts ...Option) *Machine {
	m := newMachine(source, log, dispatcher, chat, opts)
	m.scanner = intent.NewScanner()
	m.pipe = &batchPipeline{m: m, recognizer: recognizer, synth: synth}
	return m
}

// Done returns a channel closed once the current session run has
// exited. With no session active the returned channel is already
// closed.
func (m *Machine) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return m.done
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Err returns the terminal error of the most recent session run, nil
// after a clean stop.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runErr
}

// State returns the current conversational state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether a session is running.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Start begins one session and returns immediately; the pipeline runs
// until it completes, fails, or Stop is called. Failures surface as a
// single system message on the log.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return ErrActive
	}
	m.gen++
	gen := m.gen
	m.active = true
	m.runErr = nil
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	slog.Info("session: starting")

	go func() {
		defer close(done)
		defer cancel()
		err := m.pipe.run(runCtx, gen)
		m.finish(context.WithoutCancel(runCtx), gen, err)
	}()
	return nil
}

// Stop tears the active session down and waits for the pipeline to
// exit. Playback units already handed to the sink are not silenced;
// they play out on their own.
func (m *Machine) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendText injects a text turn. Valid only while Idle or Listening.
// With a live streaming session the text rides the open session and
// the reply arrives through the normal event flow; otherwise a single
// chat request is issued, tool calls are applied, and the reply is
// finalized directly.
func (m *Machine) SendText(ctx context.Context, text string) error {
	m.mu.Lock()
	state, active, gen := m.state, m.active, m.gen
	m.mu.Unlock()

	if state != StateIdle && state != StateListening {
		return fmt.Errorf("session: text turn rejected while %s", state)
	}
	if active {
		if ok, err := m.pipe.sendLive(text); ok {
			if err != nil {
				return fmt.Errorf("session: send text: %w", err)
			}
			m.log.Append(ctx, msglog.RoleUser, text)
			return nil
		}
	}
	return m.textTurn(ctx, gen, state, text)
}

// textTurn runs one one-shot chat turn and restores the prior state.
func (m *Machine) textTurn(ctx context.Context, gen uint64, prior State, text string) error {
	if m.chat == nil {
		return errors.New("session: no chat provider configured")
	}

	ctx, span := observe.StartSpan(ctx, "session.text_turn")
	defer span.End()

	m.log.Append(ctx, msglog.RoleUser, text)
	m.setState(gen, StateThinking)
	defer m.setState(gen, prior)
	started := time.Now()

	resp, err := m.chat.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: m.prompt,
		Messages:     m.history(ctx, text),
		Tools:        m.tools,
	})
	if err != nil {
		m.log.Append(ctx, msglog.RoleSystem, failureMessage(ErrService))
		return fmt.Errorf("session: text turn: %w: %v", ErrService, err)
	}

	for _, call := range resp.ToolCalls {
		m.dispatcher.HandleToolCall(ctx, call.Name, call.Arguments)
	}
	if reply := resp.Content; reply != "" {
		if m.scanner != nil && len(resp.ToolCalls) == 0 {
			if desc, ok := m.scanner.Scan(reply); ok {
				m.dispatcher.Dispatch(ctx, desc)
			}
		}
		m.log.Append(ctx, msglog.RoleAssistant, reply)
	}
	if m.metrics != nil {
		m.metrics.TurnDuration.Record(ctx, time.Since(started).Seconds())
	}
	return nil
}

// history replays the logged conversation as chat messages, ending
// with the current user text. System notices are not part of the
// conversation and are skipped.
func (m *Machine) history(ctx context.Context, text string) []llm.Message {
	logged, err := m.log.Recent(ctx, historyDepth)
	if err != nil {
		slog.Warn("session: history unavailable", "err", err)
		return []llm.Message{{Role: "user", Content: text}}
	}

	msgs := make([]llm.Message, 0, len(logged))
	for _, entry := range logged {
		switch entry.Role {
		case msglog.RoleUser:
			msgs = append(msgs, llm.Message{Role: "user", Content: entry.Text})
		case msglog.RoleAssistant:
			msgs = append(msgs, llm.Message{Role: "assistant", Content: entry.Text})
		}
	}
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != text {
		msgs = append(msgs, llm.Message{Role: "user", Content: text})
	}
	return msgs
}

// setState applies a transition, ignoring callbacks that outlived
// their session generation.
func (m *Machine) setState(gen uint64, s State) {
	m.mu.Lock()
	if gen != m.gen || m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	fn := m.onState
	m.mu.Unlock()

	slog.Debug("session: state changed", "state", s.String())
	if fn != nil {
		fn(s)
	}
}

// finish records the end of a session run. A non-nil, non-cancellation
// error produces exactly one system message.
func (m *Machine) finish(ctx context.Context, gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	// Invalidate any callback still holding this run's generation.
	m.gen++
	m.active = false
	if err != nil && !errors.Is(err, context.Canceled) {
		m.runErr = err
	}
	changed := m.state != StateIdle
	m.state = StateIdle
	fn := m.onState
	m.mu.Unlock()

	if changed && fn != nil {
		fn(StateIdle)
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, -1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session: terminated", "err", err)
		m.log.Append(ctx, msglog.RoleSystem, failureMessage(err))
	} else {
		slog.Info("session: stopped")
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrDevice):
		return "Voice session ended: audio device unavailable."
	case errors.Is(err, ErrService):
		return "Voice session ended: the assistant service failed."
	default:
		return "Voice session ended unexpectedly."
	}
}
