package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envconfigPrefix = "BACKOFFICE"

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	RetryConfig
	StoreConfig
	IdentityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type SessionConfig interface {
	GetProtectedPrefix() string
	GetSessionDuration() time.Duration
	GetProviderTimeout() time.Duration
	GetRenewTick() time.Duration
}

type RetryConfig interface {
	GetRetryMaxAttempts() int
	GetRetryInitialBackoff() time.Duration
	GetRetryMaxBackoff() time.Duration
}

type StoreConfig interface {
	GetDatabasePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type IdentityConfig interface {
	GetIdentityProvider() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
}

type mainConfig struct {
	EnvVars
	Cors
	Session
	Retry
	Store
	Identity
}

// New reads the configuration from the environment. Every key may be given
// with or without the BACKOFFICE_ prefix.
func New() (Config, error) {
	c := mainConfig{}
	if err := envconfig.Process(envconfigPrefix, &c); err != nil {
		return nil, errors.Wrap(err, "error getting configuration from environment")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c mainConfig) validate() error {
	if c.RetryMaxAttempts < 1 {
		return errors.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.SessionDuration <= 0 {
		return errors.New("SESSION_DURATION must be positive")
	}
	switch c.IdentityProvider {
	case ProviderMemory, ProviderRedis:
	case ProviderOIDC:
		if c.OIDCIssuer == "" || c.OIDCClientID == "" {
			return errors.New("OIDC_ISSUER and OIDC_CLIENT_ID are required for the oidc identity provider")
		}
	default:
		return errors.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	return nil
}
