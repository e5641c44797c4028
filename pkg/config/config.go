// Package config loads the gateway's YAML configuration. A separate
// secrets file can fill in credentials left blank in the main file so the
// main file stays safe to commit.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/let5sne/mimiclaw/pkg/doc"
	"github.com/let5sne/mimiclaw/pkg/vision"
)

// Config is the full gateway configuration.
type Config struct {
	WS     Listen        `yaml:"ws"`
	HTTP   Listen        `yaml:"http"`
	STT    STT           `yaml:"stt"`
	TTS    TTS           `yaml:"tts"`
	Vision vision.Config `yaml:"vision"`
	Doc    Doc           `yaml:"doc"`
}

// Listen is one network listener address.
type Listen struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr joins host and port.
func (l Listen) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// STT configures the speech-recognition backend.
type STT struct {
	// Endpoint is the inference server URL, e.g. "http://127.0.0.1:9090/inference".
	Endpoint string `yaml:"endpoint"`

	// Model and Device are the backend's model size and compute device;
	// echoed to the backend process manager, not used in-process.
	Model  string `yaml:"model"`
	Device string `yaml:"device"`

	// Workers bounds concurrent transcription jobs.
	Workers int `yaml:"workers"`
}

// TTS configures speech synthesis.
type TTS struct {
	Voice  string `yaml:"voice"`
	Rate   string `yaml:"rate"`
	FFmpeg string `yaml:"ffmpeg"`
}

// Doc configures document extraction limits.
type Doc struct {
	MaxChars    int `yaml:"max_chars"`
	MaxRows     int `yaml:"max_rows"`
	SheetBudget int `yaml:"sheet_budget"`
	OCRMinChars int `yaml:"ocr_min_chars"`
	OCRMaxPages int `yaml:"ocr_max_pages"`
}

// Limits converts the section to extraction limits, zero values falling
// back to the defaults.
func (d Doc) Limits() doc.Limits {
	l := doc.DefaultLimits()
	if d.MaxChars > 0 {
		l.MaxChars = d.MaxChars
	}
	if d.MaxRows > 0 {
		l.MaxRows = d.MaxRows
	}
	if d.SheetBudget > 0 {
		l.SheetBudget = d.SheetBudget
	}
	if d.OCRMinChars > 0 {
		l.OCRMinChars = d.OCRMinChars
	}
	if d.OCRMaxPages > 0 {
		l.OCRMaxPages = d.OCRMaxPages
	}
	return l
}

// secrets mirrors the credential fields a secrets file may carry.
type secrets struct {
	Vision struct {
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"vision"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		WS:   Listen{Host: "0.0.0.0", Port: 8091},
		HTTP: Listen{Host: "0.0.0.0", Port: 8090},
		STT: STT{
			Endpoint: "http://127.0.0.1:9090/inference",
			Model:    "small",
			Device:   "auto",
			Workers:  4,
		},
		TTS: TTS{
			FFmpeg: "ffmpeg",
		},
		Vision: vision.Config{
			APIVersion: "2024-02-15-preview",
			Timeout:    60 * time.Second,
		},
	}
}

// Load reads the config file over the defaults, then merges the secrets
// file if present. An empty path yields the defaults.
func Load(path, secretsPath string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if secretsPath != "" {
		if err := cfg.mergeSecrets(secretsPath); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// mergeSecrets fills credentials the main file left blank. A missing
// secrets file is not an error.
func (c *Config) mergeSecrets(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read secrets %s: %w", path, err)
	}

	var sec secrets
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return fmt.Errorf("config: parse secrets %s: %w", path, err)
	}

	if c.Vision.APIKey == "" {
		c.Vision.APIKey = sec.Vision.APIKey
	}
	if c.Vision.Endpoint == "" {
		c.Vision.Endpoint = sec.Vision.Endpoint
	}
	return nil
}
