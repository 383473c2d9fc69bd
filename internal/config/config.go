package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything read from the environment. Durations use
// time.ParseDuration syntax in the .env file.
type Config struct {
	Port         string `env:"PORT" envDefault:"8080"`
	IsProduction bool   `env:"PRODUCTION" envDefault:"false"`

	// EntryToken is the required value of the one-time entry query
	// parameter. Empty disables entry-token admission entirely.
	EntryToken string `env:"ENTRY_TOKEN,notEmpty"`

	// AllowQAOverride permits the qa query flag to bypass the mobile
	// device rule, for emulator-based testing.
	AllowQAOverride bool `env:"ALLOW_QA_OVERRIDE" envDefault:"false"`

	// SoftDuration is the nominal play window; BufferDuration is the
	// grace period after soft expiry. Hard cutoff is their sum.
	SoftDuration   time.Duration `env:"SOFT_DURATION" envDefault:"10m"`
	BufferDuration time.Duration `env:"BUFFER_DURATION" envDefault:"1m"`

	RemoteBaseURL string        `env:"REMOTE_BASE_URL" envDefault:"http://localhost:9090"`
	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"5s"`

	DeviceCookieMaxAge time.Duration `env:"DEVICE_COOKIE_MAX_AGE" envDefault:"8760h"`
	VisitTTL           time.Duration `env:"VISIT_TTL" envDefault:"3h"`
	StaticCacheAge     time.Duration `env:"STATIC_CACHE_AGE" envDefault:"5m"`

	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	RateLimiterTTL time.Duration `env:"RATE_LIMITER_TTL" envDefault:"1h"`
}

// Load reads .env if present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TotalDuration is the absolute cutoff after which a session is
// forcibly ended.
func (c Config) TotalDuration() time.Duration {
	return c.SoftDuration + c.BufferDuration
}
