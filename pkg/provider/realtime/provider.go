// Package realtime defines the streaming inference collaborator: a
// full-duplex session that consumes capture audio chunks and produces
// synthesized audio, transcription fragments, tool calls, and turn
// boundaries.
package realtime

import (
	"context"

	"github.com/lyra-voice/lyra/pkg/provider/llm"
)

// SessionConfig carries everything a session needs at setup time.
type SessionConfig struct {
	// Instructions is the system prompt injected at session start.
	Instructions string

	// Voice selects the service's prebuilt voice. Empty uses the
	// service default.
	Voice string

	// Tools are the function declarations announced to the model.
	Tools []llm.ToolDefinition
}

// Event is a single occurrence on a session's event stream. The
// concrete types below form the full vocabulary. Events arrive on one
// channel so their relative order is exactly the service's order.
type Event interface{ isEvent() }

// Opened signals that the service acknowledged session setup.
type Opened struct{}

// AudioChunk carries one base64 PCM16 chunk of synthesized speech at
// the playback rate.
type AudioChunk struct{ Data string }

// AssistantFragment is an incremental piece of the assistant's reply
// transcript.
type AssistantFragment struct{ Text string }

// UserFragment is an incremental piece of the recognized user speech.
type UserFragment struct{ Text string }

// ToolCall asks the client to execute a declared function. Args is the
// raw JSON argument object. Answer it with SendToolResponse.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// TurnComplete marks the end of the assistant's turn.
type TurnComplete struct{}

// Interrupted signals that the service abandoned the current turn,
// typically because the user started speaking.
type Interrupted struct{}

// Closed is the final event on the stream. Err is nil on a clean
// shutdown and carries the terminating error otherwise.
type Closed struct{ Err error }

func (Opened) isEvent()            {}
func (AudioChunk) isEvent()        {}
func (AssistantFragment) isEvent() {}
func (UserFragment) isEvent()      {}
func (ToolCall) isEvent()          {}
func (TurnComplete) isEvent()      {}
func (Interrupted) isEvent()       {}
func (Closed) isEvent()            {}

// SessionHandle is one live streaming session.
//
// Events returns the session's ordered event stream; the channel is
// closed after the Closed event. Send methods are safe for concurrent
// use and fail once the session is closed.
type SessionHandle interface {
	// SendAudioChunk forwards one base64 PCM16 capture chunk.
	SendAudioChunk(chunk string) error

	// SendText injects a user text turn into the conversation. The
	// reply arrives through the normal event stream.
	SendText(text string) error

	// SendToolResponse answers a ToolCall event. result is a JSON
	// object payload.
	SendToolResponse(id, name, result string) error

	Events() <-chan Event
	Close() error
}

// Provider establishes streaming sessions.
type Provider interface {
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
