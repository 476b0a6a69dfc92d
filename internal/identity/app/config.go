package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hightide-labs/identity/internal/identity/domain"
	"github.com/hightide-labs/identity/pkg/tokenx"
)

// Config is the full runtime configuration, loaded from the environment.
// OAuth2 providers live in a separate JSON file since they are structured and
// usually deployed as a mounted secret.
type Config struct {
	// Issuer is the iss claim on access tokens and the label authenticator
	// apps display for TOTP enrollments.
	Issuer string `env:"IDENTITY_ISSUER" envDefault:"identity"`

	// TokenKey is the HS256 signing key for access tokens. Required, and at
	// least 32 bytes.
	TokenKey string `env:"IDENTITY_TOKEN_KEY,required,notEmpty"`

	AccessTokenTTL  time.Duration `env:"IDENTITY_ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `env:"IDENTITY_REFRESH_TOKEN_TTL"`

	DatabaseFile  string `env:"IDENTITY_DATABASE_FILE" envDefault:"identity.db"`
	PepperFile    string `env:"IDENTITY_PEPPER_FILE" envDefault:"pepper"`
	ProvidersFile string `env:"IDENTITY_PROVIDERS_FILE"`

	RedisAddr     string `env:"IDENTITY_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"IDENTITY_REDIS_PASSWORD"`
	RedisDB       int    `env:"IDENTITY_REDIS_DB"`

	// CaptchaThreshold is the failed-login count after which the edge should
	// demand a captcha. Zero disables the gate.
	CaptchaThreshold uint64 `env:"IDENTITY_CAPTCHA_THRESHOLD" envDefault:"5"`

	RegistrationTTL      time.Duration `env:"IDENTITY_REGISTRATION_TTL"`
	HousekeepingInterval time.Duration `env:"IDENTITY_HOUSEKEEPING_INTERVAL" envDefault:"1h"`
	ShutdownGracePeriod  time.Duration `env:"IDENTITY_SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// LoadConfig parses the environment and applies defaults for the TTLs that
// have canonical values in tokenx.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = tokenx.DefaultAccessTokenTTL
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = tokenx.DefaultRefreshTokenTTL
	}

	return cfg, nil
}

// LoadProviders reads the OAuth2 provider definitions from cfg.ProvidersFile.
// An unset path means no providers, which is fine for password-only
// deployments.
func (cfg Config) LoadProviders() (map[string]domain.OAuth2Provider, error) {
	providers := make(map[string]domain.OAuth2Provider)
	if cfg.ProvidersFile == "" {
		return providers, nil
	}

	raw, err := os.ReadFile(cfg.ProvidersFile)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var list []domain.OAuth2Provider
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}

	for _, p := range list {
		if p.ID == "" {
			return nil, fmt.Errorf("provider with empty id in %s", cfg.ProvidersFile)
		}
		if _, dup := providers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q in %s", p.ID, cfg.ProvidersFile)
		}
		providers[p.ID] = p
	}
	return providers, nil
}
