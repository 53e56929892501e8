// Package coqui implements tts.Synthesizer against a locally running
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu). Synthesis is
// performed via GET /api/tts with URL query parameters; the WAV
// response is unwrapped to raw PCM and resampled to the configured
// output rate.
package coqui

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lyra-voice/lyra/pkg/audio"
	"github.com/lyra-voice/lyra/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"

	// pcmChunkSize is the size of each PCM chunk emitted on the audio
	// channel.
	pcmChunkSize = 4096

	// audioChanBuf is the buffer depth of the returned audio channel.
	audioChanBuf = 64
)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the language id sent to the TTS server (e.g. "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.httpClient.Timeout = d }
}

// WithOutputSampleRate resamples synthesised PCM to the given rate.
// Defaults to audio.PlaybackRate; 0 disables resampling.
func WithOutputSampleRate(rate int) Option {
	return func(s *Synthesizer) { s.outputRate = rate }
}

// Synthesizer implements tts.Synthesizer backed by a Coqui TTS server.
// It is safe for concurrent use.
type Synthesizer struct {
	serverURL  string
	language   string
	httpClient *http.Client
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a Synthesizer targeting the TTS server at serverURL
// (e.g. "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		outputRate: audio.PlaybackRate,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Synthesize implements tts.Synthesizer. The HTTP round trip runs in a
// background goroutine; PCM arrives on the returned channel in
// pcmChunkSize pieces.
func (s *Synthesizer) Synthesize(ctx context.Context, text, voice string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	out := make(chan []byte, audioChanBuf)
	go func() {
		defer close(out)

		pcm, err := s.synthesizeOnce(ctx, text, voice)
		if err != nil {
			slog.Error("coqui: synthesis failed", "err", err)
			return
		}
		for len(pcm) > 0 {
			end := min(pcmChunkSize, len(pcm))
			select {
			case out <- pcm[:end]:
			case <-ctx.Done():
				return
			}
			pcm = pcm[end:]
		}
	}()
	return out, nil
}

// synthesizeOnce performs one GET /api/tts round trip and unwraps the
// WAV response to PCM at the output rate.
func (s *Synthesizer) synthesizeOnce(ctx context.Context, text, voice string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice != "" {
		params.Set("speaker_id", voice)
	}
	if s.language != "" {
		params.Set("language_id", s.language)
	}

	reqURL := s.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}

	pcm := wav[info.DataOffset:]
	if s.outputRate > 0 && info.SampleRate != s.outputRate && info.Channels == 1 {
		pcm = resampleMono16(pcm, info.SampleRate, s.outputRate)
	}
	return pcm, nil
}

// wavInfo describes the PCM payload of a RIFF/WAVE response.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV walks the RIFF chunks of wav and locates the fmt and data
// chunks.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt should appear before data; assume the Coqui
				// default when it does not.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if the size is odd.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}

// resampleMono16 linearly interpolates 16-bit LE mono PCM from srcRate
// to dstRate.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
