package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "livedash.yaml"

	// DefaultListen is the default HTTP listen address
	DefaultListen = ":1880"

	// DefaultPath is the default mount path of the dashboard endpoints
	DefaultPath = "/ui"
)

// Config represents the livedash server configuration
type Config struct {
	// Listen is the HTTP listen address
	Listen string `yaml:"listen" validate:"required"`

	// Path is where the socket and operator endpoints are mounted
	Path string `yaml:"path" validate:"required,startswith=/"`

	// ReadOnly ignores value changes coming from clients
	ReadOnly bool `yaml:"read_only"`

	// RemoveStateTimeout is how long live values outlive a removed control
	RemoveStateTimeout time.Duration `yaml:"remove_state_timeout" validate:"gte=0s"`

	// ReplayDelay is the pause before a replay is served to a client
	ReplayDelay time.Duration `yaml:"replay_delay" validate:"gte=0s"`

	// Verbose enables debug logging
	Verbose bool `yaml:"verbose"`

	// Demo registers simulated controls that publish fake readings
	Demo Demo `yaml:"demo"`
}

// Demo configures the simulated flow
type Demo struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"omitempty,gte=10ms"`
	Rooms    string        `yaml:"rooms"`
}

// DefaultConfig returns a new Config with default values
func DefaultConfig() *Config {
	return &Config{
		Listen:             DefaultListen,
		Path:               DefaultPath,
		RemoveStateTimeout: time.Second,
		ReplayDelay:        50 * time.Millisecond,
		Demo: Demo{
			Interval: 2 * time.Second,
			Rooms:    "1-3",
		},
	}
}

// Load reads the configuration from path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration to path
func Save(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", strings.ToLower(e.Namespace()), e.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
