// Package stt defines the batch speech recognition collaborator: one
// complete utterance in, one transcript out.
package stt

import "context"

// Recognizer performs a single recognition pass over a finished
// utterance of mono float samples.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}
