package client

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL        string        `envconfig:"BASE_URL" default:"http://localhost:8080"`
	HubURL         string        `envconfig:"HUB_URL" default:"ws://localhost:8080/hub"`
	Token          string        `envconfig:"TOKEN"`
	Email          string        `envconfig:"EMAIL"`
	Password       string        `envconfig:"PASSWORD"`
	Codec          string        `envconfig:"CODEC" default:"profilebook.json.v1"`
	BackoffInitial time.Duration `envconfig:"BACKOFF_INITIAL" default:"500ms"`
	BackoffMax     time.Duration `envconfig:"BACKOFF_MAX" default:"30s"`
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" default:"10"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"15s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"INFO"`
}

// LoadConfig reads PROFILEBOOK_* variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("PROFILEBOOK", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
