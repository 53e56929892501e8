// Package capture feeds microphone frames into the outbound audio leg.
package capture

import (
	"context"
	"log/slog"

	"github.com/lyra-voice/lyra/internal/observe"
	"github.com/lyra-voice/lyra/pkg/audio"
)

// Source is the capture-device collaborator. Start delivers fixed-size
// mono float frames to onFrame until the stream ends, Stop is called,
// or ctx is cancelled; it returns only once delivery has stopped.
// Frame callbacks are invoked sequentially from a single goroutine.
type Source interface {
	Start(ctx context.Context, onFrame func(audio.Frame)) error
	Stop() error
}

// Encoder converts capture frames to base64 PCM16 chunk text and
// forwards them to the outbound sink. It holds no per-frame state, so
// a single Encoder serves any number of consecutive sessions.
type Encoder struct {
	send    func(chunk string) error
	metrics *observe.Metrics
}

// NewEncoder creates an Encoder forwarding chunks through send.
// metrics may be nil.
func NewEncoder(send func(chunk string) error, metrics *observe.Metrics) *Encoder {
	return &Encoder{send: send, metrics: metrics}
}

// HandleFrame encodes one frame and forwards it. Send failures are
// logged and dropped here; a broken transport surfaces through the
// session's own event stream, not through the capture path.
func (e *Encoder) HandleFrame(frame audio.Frame) {
	chunk := audio.EncodeChunk(audio.ToWire(frame.Samples))
	if err := e.send(chunk); err != nil {
		slog.Warn("capture: send chunk failed", "err", err)
		return
	}
	if e.metrics != nil {
		e.metrics.ChunksSent.Add(context.Background(), 1)
	}
}
