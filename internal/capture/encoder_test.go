package capture

import (
	"errors"
	"testing"

	"github.com/lyra-voice/lyra/pkg/audio"
)

func TestHandleFrameEncodesAndForwards(t *testing.T) {
	var sent []string
	e := NewEncoder(func(chunk string) error {
		sent = append(sent, chunk)
		return nil
	}, nil)

	frames := [][]float32{{0.1, -0.2}, {0.3}, {}}
	for _, samples := range frames {
		e.HandleFrame(audio.Frame{Samples: samples, Rate: audio.CaptureRate})
	}

	if len(sent) != len(frames) {
		t.Fatalf("sent %d chunks, want %d", len(sent), len(frames))
	}
	for i, samples := range frames {
		want := audio.EncodeChunk(audio.ToWire(samples))
		if sent[i] != want {
			t.Errorf("chunk %d = %q, want %q", i, sent[i], want)
		}
	}
}

func TestHandleFrameSurvivesSendFailure(t *testing.T) {
	calls := 0
	e := NewEncoder(func(string) error {
		calls++
		return errors.New("socket gone")
	}, nil)

	e.HandleFrame(audio.Frame{Samples: []float32{0.5}, Rate: audio.CaptureRate})
	e.HandleFrame(audio.Frame{Samples: []float32{0.5}, Rate: audio.CaptureRate})

	if calls != 2 {
		t.Errorf("send called %d times, want 2 (failures must not wedge the encoder)", calls)
	}
}
