// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	appName        = "advisor"
	configFileName = "config.json"

	// EnvAPIKey overrides the persisted credential when set.
	EnvAPIKey = "GEMINI_API_KEY"
)

// Defaults used when values are not specified.
const (
	DefaultModel       = "models/gemini-2.0-flash-live-001"
	DefaultSystemBoost = 1.7
	DefaultListenAddr  = "127.0.0.1:8765"
)

// Config represents the application configuration. The API key may be left
// empty here and supplied via the environment; its presence is a session
// startup condition, not a load-time one.
type Config struct {
	APIKey       string  `json:"api_key,omitempty"`
	Model        string  `json:"model"`
	MicDevice    string  `json:"mic_device,omitempty"`
	SystemDevice string  `json:"system_device,omitempty"`
	SystemBoost  float64 `json:"system_boost" validate:"gte=1,lte=3"`
	Knowledge    string  `json:"knowledge,omitempty"`
	ListenAddr   string  `json:"listen_addr" validate:"required,hostname_port"`
	FFmpegPath   string  `json:"ffmpeg_path,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names in error messages instead of struct field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Load reads the configuration from path, or from the user config dir when
// path is empty. A missing file yields defaults. The environment credential
// override is applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return nil, fmt.Errorf("get config path: %w", err)
		}
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyDefaults()
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists the configuration to path, or the user config dir when path
// is empty. The environment-supplied credential is not written back.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = defaultPath()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	out := *c
	if os.Getenv(EnvAPIKey) == out.APIKey {
		out.APIKey = ""
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Model:       DefaultModel,
		SystemBoost: DefaultSystemBoost,
		ListenAddr:  DefaultListenAddr,
	}
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.SystemBoost == 0 {
		c.SystemBoost = DefaultSystemBoost
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

func defaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName, configFileName), nil
}
