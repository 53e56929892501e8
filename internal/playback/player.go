package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/lyra-voice/lyra/pkg/audio"
)

// Compile-time assertion that PipeSink satisfies Sink.
var _ Sink = (*PipeSink)(nil)

// PipeSink is a Sink that paces PCM16 writes into a byte stream
// (typically a player process' stdin) against a wall-clock epoch.
// Unit completion is approximated by the frame's nominal duration.
type PipeSink struct {
	mu    sync.Mutex
	w     io.Writer
	epoch time.Time
}

// NewPipeSink creates a PipeSink writing into w. The sink's timeline
// starts at the moment of the call.
func NewPipeSink(w io.Writer) *PipeSink {
	return &PipeSink{w: w, epoch: time.Now()}
}

// Now returns the current position on the sink's timeline.
func (p *PipeSink) Now() time.Duration {
	return time.Since(p.epoch)
}

// Play implements Sink. The write is delayed until start; done fires
// one frame duration after the write.
func (p *PipeSink) Play(frame audio.Frame, start time.Duration, done func()) error {
	delay := start - p.Now()
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		p.mu.Lock()
		_, err := p.w.Write(audio.ToWire(frame.Samples))
		p.mu.Unlock()
		if err != nil {
			slog.Warn("playback: sink write failed", "err", err)
		}
		time.AfterFunc(frame.Duration(), done)
	})
	return nil
}

// StartPlayer launches ffplay reading s16le mono PCM at rate from
// stdin and returns a PipeSink feeding it. The returned stop function
// closes stdin and waits for the process to exit.
func StartPlayer(ctx context.Context, rate int) (*PipeSink, func() error, error) {
	cmd := exec.CommandContext(ctx, "ffplay",
		"-hide_banner", "-loglevel", "error",
		"-autoexit", "-nodisp",
		"-f", "s16le",
		"-ar", strconv.Itoa(rate),
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("playback: player stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("playback: start player: %w", err)
	}

	stop := func() error {
		stdin.Close()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("playback: player exit: %w", err)
		}
		return nil
	}
	return NewPipeSink(stdin), stop, nil
}
