package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config structure represents the messaging core configuration
type Config struct {
	API struct {
		// BaseURL of the campus REST service, e.g. https://campus.example.com/api
		BaseURL string        `yaml:"base_url" env:"API_BASE_URL" validate:"required,url"`
		Timeout time.Duration `yaml:"timeout" env:"API_TIMEOUT" validate:"min=1s"`
	} `yaml:"api"`

	Realtime struct {
		// Endpoint of the live socket service, e.g. wss://campus.example.com/ws
		Endpoint         string        `yaml:"endpoint" env:"REALTIME_ENDPOINT" validate:"required"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"REALTIME_HANDSHAKE_TIMEOUT" validate:"min=1s"`

		// Reconnect backoff bounds
		ReconnectInitialInterval time.Duration `yaml:"reconnect_initial_interval" env:"REALTIME_RECONNECT_INITIAL_INTERVAL" validate:"min=100ms"`
		ReconnectMaxInterval     time.Duration `yaml:"reconnect_max_interval" env:"REALTIME_RECONNECT_MAX_INTERVAL" validate:"min=1s"`
	} `yaml:"realtime"`

	Presence struct {
		// TypingWindow is how long a typing signal stays live without a refresh
		TypingWindow time.Duration `yaml:"typing_window" env:"PRESENCE_TYPING_WINDOW" validate:"min=100ms"`
	} `yaml:"presence"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" env:"LOG_FORMAT" validate:"oneof=json pretty"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	// Try to read config file if it exists
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		err = yaml.Unmarshal(file, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	if err := processStructFields(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Default returns a configuration suitable for tests and embedded use,
// pointed at the given REST base URL and socket endpoint.
func Default(baseURL, endpoint string) *Config {
	config := &Config{}
	setDefaults(config)
	config.API.BaseURL = baseURL
	config.Realtime.Endpoint = endpoint
	return config
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	config.API.Timeout = 10 * time.Second

	config.Realtime.HandshakeTimeout = 10 * time.Second
	config.Realtime.ReconnectInitialInterval = 500 * time.Millisecond
	config.Realtime.ReconnectMaxInterval = 30 * time.Second

	config.Presence.TypingWindow = 2 * time.Second

	config.Logging.Level = "info"
	config.Logging.Format = "json"
}
