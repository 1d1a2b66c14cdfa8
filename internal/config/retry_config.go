package config

import "time"

type Retry struct {
	RetryMaxAttempts    int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"100ms"`
	RetryMaxBackoff     time.Duration `envconfig:"RETRY_MAX_BACKOFF" default:"2s"`
}

var _ RetryConfig = Retry{}

func (r Retry) GetRetryMaxAttempts() int {
	return r.RetryMaxAttempts
}

func (r Retry) GetRetryInitialBackoff() time.Duration {
	return r.RetryInitialBackoff
}

func (r Retry) GetRetryMaxBackoff() time.Duration {
	return r.RetryMaxBackoff
}
