package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const minSecretLength = 16

const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// AttendanceServiceConfig holds the configuration of the attendance service.
type AttendanceServiceConfig struct {
	Env                string   `env:"ENV"                  envDefault:"development"`
	LogLevel           string   `env:"LOG_LEVEL"            envDefault:"info"`
	ServiceName        string   `env:"SERVICE_NAME"         envDefault:"attendance-service"`
	HTTPAddr           string   `env:"HTTP_ADDR"            envDefault:":5000"`
	GRPCAddr           string   `env:"GRPC_ADDR"            envDefault:":9090"`
	Timezone           string   `env:"TZ"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"                  envSeparator:","`
	OwnershipMode      string   `env:"OWNERSHIP_MODE"       envDefault:"passthrough"`
	GoogleClientID     string   `env:"GOOGLE_CLIENT_ID"`
	SentryDSN          string   `env:"SENTRY_DSN"`
	ConsulAddr         string   `env:"CONSUL_ADDR"`

	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is always used.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	Token     TokenConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
}

// TokenConfig configures the session token codec.
type TokenConfig struct {
	Secret         string        `env:"JWT_SECRET_KEY"`
	FallbackSecret string        `env:"SECRET_KEY"`
	TTL            time.Duration `env:"SESSION_TTL"    envDefault:"24h"`
	Issuer         string        `env:"TOKEN_ISSUER"   envDefault:"school-attendance-api"`
	Audience       string        `env:"TOKEN_AUDIENCE" envDefault:"school-attendance-api"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Driver   string `env:"STORE_DRIVER" envDefault:"mongo"`
	MongoURI string `env:"MONGO_URI"    envDefault:"mongodb://localhost:27017"`
	Database string `env:"PROJECT_ID"   envDefault:"school-attendance"`
}

// RateLimitConfig configures the redis backed limiter. An empty Addr disables limiting.
type RateLimitConfig struct {
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	LoginLimit    int           `env:"LOGIN_RATE_LIMIT"  envDefault:"10"`
	ScanLimit     int           `env:"SCAN_RATE_LIMIT"   envDefault:"30"`
	Window        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load parses the environment into an AttendanceServiceConfig and validates it.
func Load() (*AttendanceServiceConfig, error) {
	cfg, err := env.ParseAs[AttendanceServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if cfg.Token.Secret == "" {
		cfg.Token.Secret = cfg.Token.FallbackSecret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location returns the time zone used for default dates and times.
func (c *AttendanceServiceConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}

	return time.LoadLocation(c.Timezone)
}

// IsProduction reports whether the service runs with ENV=production.
func (c *AttendanceServiceConfig) IsProduction() bool {
	return c.Env == "production"
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is treated as a single host prefix.
func (c *AttendanceServiceConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return prefixes, nil
}

func (c *AttendanceServiceConfig) validate() error {
	if c.Token.Secret == "" {
		return errors.New("missing JWT_SECRET_KEY or SECRET_KEY environment variable")
	}
	if len(c.Token.Secret) < minSecretLength {
		return fmt.Errorf("signing secret must be at least %d bytes", minSecretLength)
	}
	if c.Token.TTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.Token.Issuer == "" || c.Token.Audience == "" {
		return errors.New("TOKEN_ISSUER and TOKEN_AUDIENCE must not be empty")
	}

	switch c.Store.Driver {
	case StoreDriverMongo:
		if c.Store.MongoURI == "" {
			return errors.New("missing MONGO_URI environment variable")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.OwnershipMode {
	case "passthrough", "enforce":
	default:
		return fmt.Errorf("unknown OWNERSHIP_MODE %q", c.OwnershipMode)
	}

	if c.RateLimit.RedisAddr != "" {
		if c.RateLimit.LoginLimit <= 0 || c.RateLimit.ScanLimit <= 0 {
			return errors.New("rate limits must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return errors.New("RATE_LIMIT_WINDOW must be positive")
		}
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TZ: %w", err)
	}

	return nil
}
