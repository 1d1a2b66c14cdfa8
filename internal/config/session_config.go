package config

import (
	"strings"
	"time"
)

type Session struct {
	ProtectedPrefix string        `envconfig:"PROTECTED_PREFIX" default:"/admin"`
	SessionDuration time.Duration `envconfig:"SESSION_DURATION" default:"30m"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"3s"`
	RenewTick       time.Duration `envconfig:"RENEW_TICK" default:"1m"`
}

var _ SessionConfig = Session{}

// GetProtectedPrefix returns the prefix guarded by the session guard, always
// with a leading slash and without a trailing one.
func (s Session) GetProtectedPrefix() string {
	prefix := "/" + strings.Trim(s.ProtectedPrefix, "/")
	return prefix
}

func (s Session) GetSessionDuration() time.Duration {
	return s.SessionDuration
}

func (s Session) GetProviderTimeout() time.Duration {
	return s.ProviderTimeout
}

func (s Session) GetRenewTick() time.Duration {
	return s.RenewTick
}
