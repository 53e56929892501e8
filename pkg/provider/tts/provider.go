// Package tts defines the batch speech synthesis collaborator.
package tts

import "context"

// Synthesizer converts one reply into a stream of PCM16 LE mono chunks
// at the synthesizer's configured output rate. The channel closes when
// synthesis is complete; a synthesis failure after the channel is
// returned ends the stream early.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (<-chan []byte, error)
}
