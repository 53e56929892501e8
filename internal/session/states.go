package session

// State is the conversational phase of a voice session.
type State int

const (
	// StateIdle means no turn is in progress. Initial and terminal.
	StateIdle State = iota

	// StateListening means capture audio is flowing (streaming) or an
	// utterance is being recorded (batch).
	StateListening

	// StateThinking means an inference request is outstanding.
	StateThinking

	// StateSpeaking means at least one playback unit is live.
	StateSpeaking
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}
