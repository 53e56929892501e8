package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lyra-voice/lyra/pkg/audio"
)

// Load reads, decodes, defaults, and validates the configuration file
// at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes a configuration document from r. Unknown keys
// are rejected so typos surface at startup instead of silently using
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:9090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Mode == "" {
		c.Mode = ModeStreaming
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = audio.CaptureRate
	}
	if c.Audio.PlaybackRate == 0 {
		c.Audio.PlaybackRate = audio.PlaybackRate
	}
	if c.Log.MaxMessages == 0 {
		c.Log.MaxMessages = 256
	}
}

// Validate checks the document for values that cannot work at runtime.
func (c *Config) Validate() error {
	if !c.Server.LogLevel.IsValid() {
		return fmt.Errorf("config: unknown log_level %q", c.Server.LogLevel)
	}
	if !c.Mode.IsValid() {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Audio.CaptureRate <= 0 {
		return fmt.Errorf("config: capture_rate must be positive, got %d", c.Audio.CaptureRate)
	}
	if c.Audio.PlaybackRate <= 0 {
		return fmt.Errorf("config: playback_rate must be positive, got %d", c.Audio.PlaybackRate)
	}
	if c.Log.MaxMessages < 0 {
		return fmt.Errorf("config: max_messages must not be negative, got %d", c.Log.MaxMessages)
	}

	switch c.Mode {
	case ModeStreaming:
		if c.Providers.Realtime.Name == "" {
			return errors.New("config: streaming mode requires providers.realtime.name")
		}
	case ModeBatch:
		if c.Providers.STT.Name == "" {
			return errors.New("config: batch mode requires providers.stt.name")
		}
		if c.Providers.LLM.Name == "" {
			return errors.New("config: batch mode requires providers.llm.name")
		}
		if c.Providers.TTS.Name == "" {
			return errors.New("config: batch mode requires providers.tts.name")
		}
	}
	return nil
}
