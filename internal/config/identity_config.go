package config

// Identity provider kinds
const (
	ProviderMemory = "memory"
	ProviderRedis  = "redis"
	ProviderOIDC   = "oidc"
)

type Identity struct {
	IdentityProvider string `envconfig:"IDENTITY_PROVIDER" default:"memory"`
	OIDCIssuer       string `envconfig:"OIDC_ISSUER"`
	OIDCClientID     string `envconfig:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `envconfig:"OIDC_CLIENT_SECRET"`
}

var _ IdentityConfig = Identity{}

func (i Identity) GetIdentityProvider() string {
	return i.IdentityProvider
}

func (i Identity) GetOIDCIssuer() string {
	return i.OIDCIssuer
}

func (i Identity) GetOIDCClientID() string {
	return i.OIDCClientID
}

func (i Identity) GetOIDCClientSecret() string {
	return i.OIDCClientSecret
}
