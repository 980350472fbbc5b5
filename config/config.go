package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RepeatConfig holds startup values for the note-repeat sequencer. Nil
// fields keep the sequencer defaults.
type RepeatConfig struct {
	Note     *int `json:"note,omitempty"`
	Count    *int `json:"count,omitempty"`
	Velocity *int `json:"velocity,omitempty"`
	Length   *int `json:"length,omitempty"`
	Beat     *int `json:"beat,omitempty"`
	Pause    *int `json:"pause,omitempty"`
	Channel  *int `json:"channel,omitempty"` // 1-16 as shown in the UI
}

// Config is the main configuration structure
type Config struct {
	// Connect names the device to auto-connect to at startup
	Connect      string       `json:"connect,omitempty"`
	Debug        bool         `json:"debug,omitempty"`
	PollInterval Duration     `json:"pollInterval,omitempty"`
	Palette      string       `json:"palette,omitempty"` // GIMP .gpl file
	Repeat       RepeatConfig `json:"repeat,omitempty"`
}

// Duration is a time.Duration stored as a string ("1s", "500ms")
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		PollInterval: Duration(time.Second),
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midictl"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Duration(time.Second)
	}
	return cfg, nil
}
