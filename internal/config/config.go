package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the engine's environment configuration. Defaults match the
// production cadences: one render tick every 750ms, one delta poll every 5s.
type Config struct {
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	FeedBaseURL string `env:"FEED_BASE_URL" envDefault:"http://localhost:8000"`

	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"750ms"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`

	NATSURL     string `env:"NATS_URL"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	InfluxURL    string `env:"INFLUXDB_URL"`
	InfluxToken  string `env:"INFLUXDB_TOKEN"`
	InfluxOrg    string `env:"INFLUXDB_ORG"`
	InfluxBucket string `env:"INFLUXDB_BUCKET"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret"`

	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"3s"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
