// Package audio provides the sample-format conversions used throughout
// Lyra: float frames in [-1, 1] on the processing side, 16-bit
// little-endian signed PCM on the wire, and base64 chunk text as the
// transport unit in both directions.
//
// The capture leg runs at 16 kHz mono; the playback leg at 24 kHz mono.
// Both are uncompressed PCM16.
package audio

import "time"

// Sample rates of the two transport legs, in Hz.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000
)

// BytesPerSample is the wire width of one PCM16 sample.
const BytesPerSample = 2

// Frame is a block of mono float samples in [-1, 1] at a given rate.
type Frame struct {
	Samples []float32
	Rate    int
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.Rate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.Rate)
}
