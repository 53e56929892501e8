package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrDecode reports a chunk whose text is not valid base64 or whose
// decoded payload is not a whole number of PCM16 samples. Callers
// match it with errors.Is and drop the offending chunk; a bad chunk
// never tears down the session.
var ErrDecode = errors.New("audio: malformed chunk")

// EncodeChunk wraps a PCM16 payload into the base64 chunk text used as
// the unit of transport on both audio legs.
func EncodeChunk(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeChunk reverses EncodeChunk. The returned payload always holds
// an even number of bytes; anything else wraps ErrDecode.
func DecodeChunk(text string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(pcm)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: odd payload length %d", ErrDecode, len(pcm))
	}
	return pcm, nil
}
