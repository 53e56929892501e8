package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/lyra-voice/lyra/pkg/audio"
)

// Compile-time assertion that FFmpegSource satisfies Source.
var _ Source = (*FFmpegSource)(nil)

// FFmpegSource captures microphone audio by running ffmpeg against the
// platform's default input device and reading s16le mono PCM from its
// stdout.
type FFmpegSource struct {
	rate    int
	frameMS int
	device  string

	mu   sync.Mutex
	cmd  *exec.Cmd
	stop context.CancelFunc
}

// MicOption is a functional option for configuring an FFmpegSource.
type MicOption func(*FFmpegSource)

// WithMicRate sets the capture sample rate. Defaults to audio.CaptureRate.
func WithMicRate(rate int) MicOption {
	return func(s *FFmpegSource) { s.rate = rate }
}

// WithMicFrameMS sets the frame duration delivered to the callback.
// Defaults to 20 ms.
func WithMicFrameMS(ms int) MicOption {
	return func(s *FFmpegSource) { s.frameMS = ms }
}

// WithMicDevice overrides the input device identifier passed to
// ffmpeg (avfoundation index on macOS, pulse source on Linux).
func WithMicDevice(device string) MicOption {
	return func(s *FFmpegSource) { s.device = device }
}

// NewFFmpegSource creates a source with the supplied options applied.
func NewFFmpegSource(opts ...MicOption) *FFmpegSource {
	s := &FFmpegSource{rate: audio.CaptureRate, frameMS: 20}
	for _, o := range opts {
		o(s)
	}
	return s
}

// args builds the platform-specific ffmpeg invocation.
func (s *FFmpegSource) args() []string {
	common := []string{
		"-hide_banner", "-loglevel", "error",
		"-ac", "1",
		"-ar", strconv.Itoa(s.rate),
		"-f", "s16le",
		"-",
	}
	switch runtime.GOOS {
	case "darwin":
		dev := s.device
		if dev == "" {
			dev = "0"
		}
		// none:<index> avoids opening a video device.
		return append([]string{"-f", "avfoundation", "-i", "none:" + dev}, common...)
	case "windows":
		dev := s.device
		if dev == "" {
			dev = "audio=default"
		}
		return append([]string{"-f", "dshow", "-i", dev}, common...)
	default:
		dev := s.device
		if dev == "" {
			dev = "default"
		}
		return append([]string{"-f", "pulse", "-i", dev}, common...)
	}
}

// Start implements Source. It blocks reading frames until the process
// exits, Stop is called, or ctx is cancelled.
func (s *FFmpegSource) Start(ctx context.Context, onFrame func(audio.Frame)) error {
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, "ffmpeg", s.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture: mic stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("capture: start ffmpeg: %w", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stop = cancel
	s.mu.Unlock()

	frameBytes := s.rate * s.frameMS / 1000 * audio.BytesPerSample
	buf := make([]byte, frameBytes)
	var readErr error
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && runCtx.Err() == nil {
				readErr = err
			}
			break
		}
		onFrame(audio.ToFrame(buf, s.rate))
	}

	cancel()
	waitErr := cmd.Wait()

	s.mu.Lock()
	s.cmd = nil
	s.stop = nil
	s.mu.Unlock()

	if readErr != nil {
		return fmt.Errorf("capture: read mic: %w", readErr)
	}
	if waitErr != nil && runCtx.Err() == nil {
		return fmt.Errorf("capture: ffmpeg exit: %w", waitErr)
	}
	return nil
}

// Stop implements Source. It terminates the capture process, causing
// Start to return. Stopping an idle source is a no-op.
func (s *FFmpegSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
	}
	return nil
}
