package authflow

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig is the environment-backed Config implementation.
type EnvConfig struct {
	CookieName         string        `env:"AUTHFLOW_COOKIE_NAME" envDefault:"__session"`
	EncryptionKey      string        `env:"AUTHFLOW_ENCRYPTION_KEY,required"`
	SigningKey         string        `env:"AUTHFLOW_SIGNING_KEY,required"`
	SessionDuration    time.Duration `env:"AUTHFLOW_SESSION_DURATION" envDefault:"168h"`
	LoginPath          string        `env:"AUTHFLOW_LOGIN_PATH" envDefault:"/login"`
	DefaultRedirect    string        `env:"AUTHFLOW_DEFAULT_REDIRECT" envDefault:"/dashboard"`
	RejectedRouteParam string        `env:"AUTHFLOW_REDIRECT_PARAM" envDefault:"redirectTo"`
	DBPath             string        `env:"AUTHFLOW_DB_PATH" envDefault:"file::memory:?cache=shared"`
	JWKSURL            string        `env:"AUTHFLOW_JWKS_URL"`
	TokenIssuer        string        `env:"AUTHFLOW_TOKEN_ISSUER"`
	TokenAudience      string        `env:"AUTHFLOW_TOKEN_AUDIENCE"`
}

var _ Config = (*EnvConfig)(nil)

// NewEnvConfig loads configuration from the environment.
func NewEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("authflow: parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) validate() error {
	switch len(c.EncryptionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("authflow: encryption key must be 16, 24, or 32 bytes, got %d", len(c.EncryptionKey))
	}

	if len(c.SigningKey) == 0 {
		return fmt.Errorf("authflow: signing key is required")
	}

	return nil
}

func (c *EnvConfig) GetCookieName() string             { return c.CookieName }
func (c *EnvConfig) GetEncryptionKey() []byte          { return []byte(c.EncryptionKey) }
func (c *EnvConfig) GetSigningKey() []byte             { return []byte(c.SigningKey) }
func (c *EnvConfig) GetSessionDuration() time.Duration { return c.SessionDuration }
func (c *EnvConfig) GetLoginPath() string              { return c.LoginPath }
func (c *EnvConfig) GetDefaultRedirect() string        { return c.DefaultRedirect }
func (c *EnvConfig) GetRejectedRouteParam() string     { return c.RejectedRouteParam }
