package config

import (
	"strings"
	"testing"
)

const minimalStreaming = `
mode: streaming
providers:
  realtime:
    name: gemini-live
    api_key: test-key
    model: gemini-2.0-flash-live-001
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalStreaming))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != "127.0.0.1:9090" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("LogLevel = %q", cfg.Server.LogLevel)
	}
	if cfg.Audio.CaptureRate != 16000 || cfg.Audio.PlaybackRate != 24000 {
		t.Errorf("audio rates = %d/%d", cfg.Audio.CaptureRate, cfg.Audio.PlaybackRate)
	}
	if cfg.Log.MaxMessages != 256 {
		t.Errorf("MaxMessages = %d", cfg.Log.MaxMessages)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	doc := `
mode: streaming
providers:
  realtime:
    name: gemini-live
server:
  listne_addr: ":9999"
`
	if _, err := LoadFromReader(strings.NewReader(doc)); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestValidateModeRequirements(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "streaming without realtime provider",
			doc:  "mode: streaming\n",
			want: "providers.realtime.name",
		},
		{
			name: "batch without stt",
			doc: `
mode: batch
providers:
  llm:
    name: ollama
  tts:
    name: coqui
`,
			want: "providers.stt.name",
		},
		{
			name: "batch without tts",
			doc: `
mode: batch
providers:
  stt:
    name: whisper-native
  llm:
    name: ollama
`,
			want: "providers.tts.name",
		},
		{
			name: "unknown mode",
			doc:  "mode: duplex\n",
			want: "unknown mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoadFullDocument(t *testing.T) {
	doc := `
server:
  listen_addr: ":8086"
  log_level: debug
mode: batch
session:
  system_prompt: You are a helpful voice assistant.
  voice: Puck
audio:
  capture_rate: 16000
  playback_rate: 22050
  mic_device: hw:1
providers:
  stt:
    name: whisper-native
    model_path: /models/ggml-base.en.bin
    language: en
  llm:
    name: ollama
    base_url: http://localhost:11434
    model: llama3.2
  tts:
    name: coqui
    base_url: http://localhost:5002
log:
  postgres_dsn: postgres://lyra@localhost/lyra
  max_messages: 64
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Mode != ModeBatch {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Audio.PlaybackRate != 22050 {
		t.Errorf("PlaybackRate = %d", cfg.Audio.PlaybackRate)
	}
	if cfg.Providers.STT.ModelPath != "/models/ggml-base.en.bin" {
		t.Errorf("STT.ModelPath = %q", cfg.Providers.STT.ModelPath)
	}
	if cfg.Server.LogLevel.Level().String() != "DEBUG" {
		t.Errorf("log level = %v", cfg.Server.LogLevel.Level())
	}
	if cfg.Log.MaxMessages != 64 {
		t.Errorf("MaxMessages = %d", cfg.Log.MaxMessages)
	}
}
