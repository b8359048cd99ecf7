package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	HTTPHost              string        `env:"HTTP_HOST,default=0.0.0.0"`
	HTTPPort              int           `env:"HTTP_PORT,required=true"`
	GRPCPort              int           `env:"GRPC_PORT,required=true"`
	DebugPort             *int          `env:"DEBUG_PORT"`
	BadgerFilepath        string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath         string        `env:"BLUGE_FILEPATH,required=true"`
	LogLevel              string        `env:"LOG_LEVEL,required=true"`
	JWTSecret             string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration     time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	ConnectionBufferSize  int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	DeliveryTimeout       time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	PingInterval          time.Duration `env:"PING_INTERVAL,required=true"`
	ConnectionIdleTimeout time.Duration `env:"CONNECTION_IDLE_TIMEOUT,required=true"`
	JanitorInterval       time.Duration `env:"JANITOR_INTERVAL,required=true"`
	MetricInterval        time.Duration `env:"METRIC_INTERVAL,default=5s"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,required=true"`
	MaxContentLength      int           `env:"MAX_CONTENT_LENGTH,required=true"`
	CharReplacement       string        `env:"CHARACTER_REPLACEMENT,required=true"`
	LimitMessages         *int          `env:"LIMIT_MESSAGES"`
	AllowedOrigins        string        `env:"ALLOWED_ORIGINS,default=*"`
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// ViewerConfig is the subset read by the standalone inspector.
type ViewerConfig struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
}
