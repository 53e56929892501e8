package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
)

// buildWAV assembles a minimal RIFF/WAVE file around pcm.
func buildWAV(t *testing.T, pcm []byte, sampleRate, channels int) []byte {
	t.Helper()
	var buf bytes.Buffer
	u32 := func(v uint32) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	u16 := func(v uint16) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}

	buf.WriteString("RIFF")
	u32(uint32(36 + len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	u32(16)
	u16(1) // PCM
	u16(uint16(channels))
	u32(uint32(sampleRate))
	u32(uint32(sampleRate * channels * 2))
	u16(uint16(channels * 2))
	u16(16)

	buf.WriteString("data")
	u32(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func TestSynthesizeUnwrapsWAVAndChunks(t *testing.T) {
	pcm := make([]byte, pcmChunkSize+100)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(buildWAV(t, pcm, 24000, 1))
	}))
	defer srv.Close()

	s, err := New(srv.URL, WithOutputSampleRate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ch, err := s.Synthesize(context.Background(), "hello there", "tts_models-en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var got []byte
	for chunk := range ch {
		if len(chunk) > pcmChunkSize {
			t.Errorf("chunk of %d bytes exceeds pcmChunkSize", len(chunk))
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("reassembled PCM differs: got %d bytes, want %d", len(got), len(pcm))
	}

	if gotQuery["text"][0] != "hello there" {
		t.Errorf("text param = %v", gotQuery["text"])
	}
	if gotQuery["speaker_id"][0] != "tts_models-en" {
		t.Errorf("speaker_id param = %v", gotQuery["speaker_id"])
	}
}

func TestSynthesizeResamplesToOutputRate(t *testing.T) {
	// 100 samples at 12 kHz should become ~200 at 24 kHz.
	pcm := make([]byte, 200)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buildWAV(t, pcm, 12000, 1))
	}))
	defer srv.Close()

	s, err := New(srv.URL, WithOutputSampleRate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ch, err := s.Synthesize(context.Background(), "hi", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var got []byte
	for chunk := range ch {
		got = append(got, chunk...)
	}
	if len(got) != 400 {
		t.Errorf("resampled to %d bytes, want 400", len(got))
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	s, err := New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), "  ", ""); err == nil {
		t.Error("empty text accepted")
	}
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	for _, payload := range [][]byte{
		nil,
		[]byte("too short"),
		[]byte("RIFFxxxxNOPE"),
		buildWAV(t, nil, 24000, 1)[:20],
	} {
		if _, err := parseWAV(payload); err == nil {
			t.Errorf("parseWAV(%q) succeeded", payload)
		}
	}
}
