package audio

import "math"

// ToWire converts float samples in [-1, 1] to 16-bit little-endian
// signed PCM. Out-of-range samples are clamped before scaling, so a
// float of 1.5 lands on 32767 rather than wrapping.
func ToWire(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		f := float64(s)
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		v := int16(math.Round(f * 32767))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ToFrame converts 16-bit little-endian signed PCM back to float
// samples by dividing by 32768, so every wire value maps into [-1, 1).
// pcm must hold an even number of bytes; use DecodeChunk to validate
// untrusted input first.
func ToFrame(pcm []byte, rate int) Frame {
	n := len(pcm) / BytesPerSample
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		samples[i] = float32(v) / 32768
	}
	return Frame{Samples: samples, Rate: rate}
}
