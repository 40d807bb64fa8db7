package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.trovia/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	// API is the base URL of the Trovia REST backend.
	API string `toml:"api_url"`
	// Realtime is the WebSocket URL of the document subscription service.
	Realtime string `toml:"realtime_url"`

	Storage Storage `toml:"storage"`

	// ReadGuardMS is the optimistic mark-read guard window in milliseconds.
	// Zero means the built-in default.
	ReadGuardMS int `toml:"read_guard_ms"`
}

// Storage configures the S3-compatible blob service used for image messages
// and avatar uploads.
type Storage struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	// PublicBase is the URL prefix under which uploaded objects resolve.
	PublicBase string `toml:"public_base"`
}

// Defaults used when config.toml is absent or leaves fields empty.
const (
	DefaultAPI      = "https://api.trovia.app"
	DefaultRealtime = "wss://rt.trovia.app/v1/watch"
)

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to built-in defaults
// when the file does not exist.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
		cfg.applyDefaults()
	}
	return cfg
}

func (c *Config) applyDefaults() {
	if c.API == "" {
		c.API = DefaultAPI
	}
	if c.Realtime == "" {
		c.Realtime = DefaultRealtime
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
