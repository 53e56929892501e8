package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lyra-voice/lyra/internal/action"
	"github.com/lyra-voice/lyra/internal/msglog"
	"github.com/lyra-voice/lyra/pkg/audio"
	"github.com/lyra-voice/lyra/pkg/provider/llm"
	"github.com/lyra-voice/lyra/pkg/provider/realtime"
)

// --- test doubles ---

type fakeHandle struct {
	mu        sync.Mutex
	events    chan realtime.Event
	closed    bool
	chunks    []string
	texts     []string
	responses []string
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{events: make(chan realtime.Event, 32)}
}

func (h *fakeHandle) push(ev realtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.events <- ev
}

func (h *fakeHandle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.events <- realtime.Closed{Err: err}
	close(h.events)
}

func (h *fakeHandle) SendAudioChunk(chunk string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chunks = append(h.chunks, chunk)
	return nil
}

func (h *fakeHandle) SendText(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, text)
	return nil
}

func (h *fakeHandle) SendToolResponse(id, name, result string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses = append(h.responses, result)
	return nil
}

func (h *fakeHandle) sentResponses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.responses...)
}

func (h *fakeHandle) sentTexts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.texts...)
}

func (h *fakeHandle) Events() <-chan realtime.Event { return h.events }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.events <- realtime.Closed{}
	close(h.events)
	return nil
}

type fakeProvider struct {
	handle *fakeHandle
	err    error

	mu  sync.Mutex
	cfg realtime.SessionConfig
}

func (p *fakeProvider) Connect(_ context.Context, cfg realtime.SessionConfig) (realtime.SessionHandle, error) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return p.handle, nil
}

// blockingSource delivers nothing and runs until cancelled.
type blockingSource struct{}

func (blockingSource) Start(ctx context.Context, _ func(audio.Frame)) error {
	<-ctx.Done()
	return nil
}
func (blockingSource) Stop() error { return nil }

// scriptedSource delivers its frames, then runs until cancelled.
type scriptedSource struct{ frames []audio.Frame }

func (s *scriptedSource) Start(ctx context.Context, onFrame func(audio.Frame)) error {
	for _, f := range s.frames {
		if ctx.Err() != nil {
			return nil
		}
		onFrame(f)
	}
	<-ctx.Done()
	return nil
}
func (s *scriptedSource) Stop() error { return nil }

type failingSource struct{}

func (failingSource) Start(context.Context, func(audio.Frame)) error {
	return errors.New("no microphone")
}
func (failingSource) Stop() error { return nil }

// memorySink records plays. With auto set, completions fire shortly
// after scheduling; otherwise the test fires them via finishAll.
type memorySink struct {
	mu    sync.Mutex
	auto  bool
	plays int
	dones []func()
}

func (s *memorySink) Play(_ audio.Frame, _ time.Duration, done func()) error {
	s.mu.Lock()
	s.plays++
	if s.auto {
		s.mu.Unlock()
		time.AfterFunc(time.Millisecond, done)
		return nil
	}
	s.dones = append(s.dones, done)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Now() time.Duration { return 0 }

func (s *memorySink) finishAll() {
	s.mu.Lock()
	dones := s.dones
	s.dones = nil
	s.mu.Unlock()
	for _, done := range dones {
		done()
	}
}

type fakeOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *fakeOpener) OpenExternalView(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *fakeOpener) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}

type fakeChat struct {
	mu   sync.Mutex
	resp llm.CompletionResponse
	err  error
	reqs []llm.CompletionRequest
}

func (c *fakeChat) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	c.reqs = append(c.reqs, req)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	resp := c.resp
	return &resp, nil
}

type fakeRecognizer struct{ text string }

func (r fakeRecognizer) Transcribe(context.Context, []float32, int) (string, error) {
	return r.text, nil
}

type fakeSynth struct{ pcm [][]byte }

func (s fakeSynth) Synthesize(context.Context, string, string) (<-chan []byte, error) {
	out := make(chan []byte, len(s.pcm))
	for _, chunk := range s.pcm {
		out <- chunk
	}
	close(out)
	return out, nil
}

// --- helpers ---

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testChunk(samples int) string {
	pcm := make([]float32, samples)
	for i := range pcm {
		pcm[i] = 0.25
	}
	return audio.EncodeChunk(audio.ToWire(pcm))
}

type streamingFixture struct {
	machine *Machine
	handle  *fakeHandle
	sink    *memorySink
	opener  *fakeOpener
	log     *msglog.Log
	states  chan State
}

func newStreamingFixture(chat llm.Provider, autoSink bool) *streamingFixture {
	f := &streamingFixture{
		handle: newFakeHandle(),
		sink:   &memorySink{auto: autoSink},
		opener: &fakeOpener{},
		log:    msglog.New(nil, msglog.NewMemoryStore(0)),
		states: make(chan State, 32),
	}
	f.machine = NewStreaming(
		&fakeProvider{handle: f.handle},
		chat,
		blockingSource{},
		f.log,
		action.NewDispatcher(f.opener, nil),
		WithSystemPrompt("You are a helpful voice assistant."),
		WithSinkFactory(func(context.Context) (Sink, func() error, error) {
			return f.sink, func() error { return nil }, nil
		}),
		WithStateFunc(func(s State) { f.states <- s }),
	)
	return f
}

// --- tests ---

func TestStreamingTurn(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.machine.Stop(ctx)

	f.handle.push(realtime.Opened{})
	waitState(t, f.states, StateListening)

	f.handle.push(realtime.AudioChunk{Data: testChunk(2400)})
	waitState(t, f.states, StateSpeaking)

	waitFor(t, "chunk scheduled", func() bool {
		f.sink.mu.Lock()
		defer f.sink.mu.Unlock()
		return f.sink.plays == 1
	})
	f.sink.finishAll()
	waitState(t, f.states, StateListening)

	f.handle.push(realtime.AssistantFragment{Text: "hel"})
	f.handle.push(realtime.AssistantFragment{Text: "lo"})
	f.handle.push(realtime.TurnComplete{})

	waitFor(t, "assistant message", func() bool {
		msgs, _ := f.log.Recent(ctx, 10)
		return len(msgs) == 1
	})
	msgs, _ := f.log.Recent(ctx, 10)
	if msgs[0].Role != msglog.RoleAssistant || msgs[0].Text != "hello" {
		t.Errorf("logged message = %+v", msgs[0])
	}
	if got := f.machine.State(); got != StateListening {
		t.Errorf("state after turn = %v, want listening", got)
	}
}

func TestStreamingToolCall(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.machine.Stop(ctx)

	f.handle.push(realtime.Opened{})
	waitState(t, f.states, StateListening)

	f.handle.push(realtime.ToolCall{ID: "call-1", Name: "openYoutube", Args: `{"query":"lofi"}`})

	waitFor(t, "tool response", func() bool { return len(f.handle.sentResponses()) == 1 })
	if got := f.handle.sentResponses()[0]; got != `{"result":"Success"}` {
		t.Errorf("tool response = %q", got)
	}
	urls := f.opener.opened()
	if len(urls) != 1 {
		t.Fatalf("opened %d views, want 1", len(urls))
	}
	if want := "https://www.youtube.com/results?search_query=lofi"; urls[0] != want {
		t.Errorf("opened %q, want %q", urls[0], want)
	}
}

func TestStreamingInterruptedDiscardsPendingReply(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.machine.Stop(ctx)

	f.handle.push(realtime.Opened{})
	waitState(t, f.states, StateListening)

	f.handle.push(realtime.AssistantFragment{Text: "I was about to say"})
	f.handle.push(realtime.Interrupted{})
	f.handle.push(realtime.AssistantFragment{Text: "something else"})
	f.handle.push(realtime.TurnComplete{})

	waitFor(t, "finalized message", func() bool {
		msgs, _ := f.log.Recent(ctx, 10)
		return len(msgs) == 1
	})
	msgs, _ := f.log.Recent(ctx, 10)
	if msgs[0].Text != "something else" {
		t.Errorf("finalized %q, want only the post-interruption fragments", msgs[0].Text)
	}
}

func TestStaleCallbacksIgnoredAfterStop(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.handle.push(realtime.Opened{})
	waitState(t, f.states, StateListening)

	f.handle.push(realtime.AudioChunk{Data: testChunk(2400)})
	waitState(t, f.states, StateSpeaking)

	if err := f.machine.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if f.machine.Active() {
		t.Fatal("still active after Stop")
	}

	// Late arrivals for the closed session must not mutate anything.
	f.handle.push(realtime.AssistantFragment{Text: "late"})
	f.handle.push(realtime.TurnComplete{})
	f.sink.finishAll()

	time.Sleep(50 * time.Millisecond)
	if got := f.machine.State(); got != StateIdle {
		t.Errorf("state after stop = %v, want idle", got)
	}
	if msgs, _ := f.log.Recent(ctx, 10); len(msgs) != 0 {
		t.Errorf("messages after stop = %+v, want none", msgs)
	}
}

func TestServiceFailureAppendsOneSystemMessage(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.handle.push(realtime.Opened{})
	waitState(t, f.states, StateListening)

	f.handle.fail(errors.New("connection reset"))

	waitFor(t, "session end", func() bool { return !f.machine.Active() })
	waitFor(t, "system message", func() bool {
		msgs, _ := f.log.Recent(ctx, 10)
		return len(msgs) == 1
	})
	msgs, _ := f.log.Recent(ctx, 10)
	if msgs[0].Role != msglog.RoleSystem {
		t.Errorf("message role = %q, want system", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Text, "service") {
		t.Errorf("system message = %q", msgs[0].Text)
	}
	if got := f.machine.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestSendTextRidesLiveSession(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.machine.Stop(ctx)

	f.handle.push(realtime.Opened{})
	waitState(t, f.states, StateListening)

	if err := f.machine.SendText(ctx, "what's the weather"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if texts := f.handle.sentTexts(); len(texts) != 1 || texts[0] != "what's the weather" {
		t.Errorf("sent texts = %q", texts)
	}
	msgs, _ := f.log.Recent(ctx, 10)
	if len(msgs) != 1 || msgs[0].Role != msglog.RoleUser {
		t.Errorf("logged = %+v, want one user message", msgs)
	}
}

func TestSendTextIdleOneShot(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{resp: llm.CompletionResponse{
		Content: "Opening a search for you.",
		ToolCalls: []llm.ToolCall{
			{ID: "1", Name: "searchGoogle", Arguments: `{"query":"red pandas"}`},
		},
	}}
	f := newStreamingFixture(chat, false)

	if err := f.machine.SendText(ctx, "look up red pandas"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	urls := f.opener.opened()
	if len(urls) != 1 || urls[0] != "https://www.google.com/search?q=red+pandas" {
		t.Errorf("opened = %q", urls)
	}
	msgs, _ := f.log.Recent(ctx, 10)
	if len(msgs) != 2 || msgs[0].Role != msglog.RoleUser || msgs[1].Role != msglog.RoleAssistant {
		t.Fatalf("logged = %+v", msgs)
	}
	if got := f.machine.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()
	if len(chat.reqs) != 1 {
		t.Fatalf("chat requests = %d, want 1", len(chat.reqs))
	}
	if len(chat.reqs[0].Tools) != 3 {
		t.Errorf("declared %d tools, want 3", len(chat.reqs[0].Tools))
	}
	if chat.reqs[0].SystemPrompt == "" {
		t.Error("system prompt not carried")
	}
}

func TestSendTextFailureAppendsSystemMessage(t *testing.T) {
	ctx := context.Background()
	chat := &fakeChat{err: errors.New("backend down")}
	f := newStreamingFixture(chat, false)

	err := f.machine.SendText(ctx, "hello")
	if !errors.Is(err, ErrService) {
		t.Fatalf("err = %v, want ErrService", err)
	}
	msgs, _ := f.log.Recent(ctx, 10)
	var system int
	for _, m := range msgs {
		if m.Role == msglog.RoleSystem {
			system++
		}
	}
	if system != 1 {
		t.Errorf("system messages = %d, want exactly 1", system)
	}
}

func batchFrames() []audio.Frame {
	speech := make([]float32, 1600)
	for i := range speech {
		speech[i] = 0.3
	}
	silence := make([]float32, 1600)

	var frames []audio.Frame
	for i := 0; i < 4; i++ {
		frames = append(frames, audio.Frame{Samples: speech, Rate: audio.CaptureRate})
	}
	for i := 0; i < 10; i++ {
		frames = append(frames, audio.Frame{Samples: silence, Rate: audio.CaptureRate})
	}
	return frames
}

func TestBatchTurn(t *testing.T) {
	ctx := context.Background()

	chat := &fakeChat{resp: llm.CompletionResponse{Content: "search for red pandas"}}
	opener := &fakeOpener{}
	log := msglog.New(nil, msglog.NewMemoryStore(0))
	sink := &memorySink{auto: true}
	states := make(chan State, 32)

	pcm := make([]byte, 4800)
	m := NewBatch(
		fakeRecognizer{text: "tell me about red pandas"},
		chat,
		fakeSynth{pcm: [][]byte{pcm}},
		&scriptedSource{frames: batchFrames()},
		log,
		action.NewDispatcher(opener, nil),
		WithSinkFactory(func(context.Context) (Sink, func() error, error) {
			return sink, func() error { return nil }, nil
		}),
		WithStateFunc(func(s State) { states <- s }),
	)

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitState(t, states, StateListening)
	waitState(t, states, StateThinking)
	waitState(t, states, StateSpeaking)
	waitState(t, states, StateIdle)
	waitFor(t, "session end", func() bool { return !m.Active() })

	msgs, _ := log.Recent(ctx, 10)
	if len(msgs) != 2 {
		t.Fatalf("logged = %+v, want user and assistant", msgs)
	}
	if msgs[0].Role != msglog.RoleUser || msgs[0].Text != "tell me about red pandas" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != msglog.RoleAssistant || msgs[1].Text != "search for red pandas" {
		t.Errorf("assistant message = %+v", msgs[1])
	}

	urls := opener.opened()
	if len(urls) != 1 || urls[0] != "https://www.google.com/search?q=red+pandas" {
		t.Errorf("opened = %q", urls)
	}
}

func TestBatchDeviceFailure(t *testing.T) {
	ctx := context.Background()
	log := msglog.New(nil, msglog.NewMemoryStore(0))

	m := NewBatch(
		fakeRecognizer{},
		&fakeChat{},
		fakeSynth{},
		failingSource{},
		log,
		action.NewDispatcher(&fakeOpener{}, nil),
		WithSinkFactory(func(context.Context) (Sink, func() error, error) {
			return &memorySink{auto: true}, func() error { return nil }, nil
		}),
	)

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "session end", func() bool { return !m.Active() })
	waitFor(t, "system message", func() bool {
		msgs, _ := log.Recent(ctx, 10)
		return len(msgs) == 1
	})

	msgs, _ := log.Recent(ctx, 10)
	if msgs[0].Role != msglog.RoleSystem || !strings.Contains(msgs[0].Text, "device") {
		t.Errorf("system message = %+v", msgs[0])
	}
	if got := m.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestStartWhileActive(t *testing.T) {
	ctx := context.Background()
	f := newStreamingFixture(nil, false)

	if err := f.machine.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.machine.Stop(ctx)

	if err := f.machine.Start(ctx); !errors.Is(err, ErrActive) {
		t.Errorf("second Start = %v, want ErrActive", err)
	}
}
