// Package config defines the YAML configuration schema for Lyra and
// its loader.
package config

import "log/slog"

// LogLevel is the configured slog level.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether the level is one of the known values.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts the configured value to a slog.Level. Unknown values
// map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode selects the conversation pipeline.
type Mode string

const (
	// ModeStreaming runs the full-duplex realtime session.
	ModeStreaming Mode = "streaming"

	// ModeBatch runs the half-duplex record-transcribe-reply-speak
	// pipeline.
	ModeBatch Mode = "batch"
)

// IsValid reports whether the mode is one of the known values.
func (m Mode) IsValid() bool {
	return m == ModeStreaming || m == ModeBatch
}

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Mode      Mode            `yaml:"mode"`
	Session   SessionConfig   `yaml:"session"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTP listener and logging.
type ServerConfig struct {
	// ListenAddr is the bind address of the /metrics and /healthz
	// listener. Default: "127.0.0.1:9090".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel is the slog level. Default: "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig configures the conversation.
type SessionConfig struct {
	// SystemPrompt is the persona instruction injected at session
	// start and into batch requests.
	SystemPrompt string `yaml:"system_prompt"`

	// Voice is the prebuilt voice name (streaming) or speaker id
	// (batch synthesis).
	Voice string `yaml:"voice"`
}

// AudioConfig configures the two audio legs.
type AudioConfig struct {
	// CaptureRate is the microphone sample rate in Hz. Default: 16000.
	CaptureRate int `yaml:"capture_rate"`

	// PlaybackRate is the playback sample rate in Hz. Default: 24000.
	PlaybackRate int `yaml:"playback_rate"`

	// MicDevice overrides the platform's default input device.
	MicDevice string `yaml:"mic_device"`
}

// ProvidersConfig selects the inference collaborators.
type ProvidersConfig struct {
	// Realtime is the streaming-mode session provider.
	Realtime ProviderEntry `yaml:"realtime"`

	// LLM is the batch-mode and text-turn chat provider.
	LLM ProviderEntry `yaml:"llm"`

	// STT is the batch-mode speech recognizer.
	STT ProviderEntry `yaml:"stt"`

	// TTS is the batch-mode speech synthesizer.
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry configures one provider backend.
type ProviderEntry struct {
	// Name selects the backend implementation.
	Name string `yaml:"name"`

	// APIKey authenticates against hosted services.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend endpoint (local servers, tests).
	BaseURL string `yaml:"base_url"`

	// Model names the model, where the backend has one.
	Model string `yaml:"model"`

	// ModelPath points at a local model file (whisper).
	ModelPath string `yaml:"model_path"`

	// Language is a BCP-47 code for recognition/synthesis backends.
	Language string `yaml:"language"`
}

// LogConfig configures message-log persistence. Only finalized text is
// ever persisted, never audio.
type LogConfig struct {
	// PostgresDSN enables the durable store when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`

	// MaxMessages bounds the in-memory ring. Default: 256.
	MaxMessages int `yaml:"max_messages"`
}
