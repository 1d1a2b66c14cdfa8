package config

import (
	"fmt"
	"strings"
)

type EnvVars struct {
	Port    string `envconfig:"PORT" default:"8080"`
	AppName string `envconfig:"APP_NAME" default:"Back Office"`
	Env     string `envconfig:"ENV" default:"DEV"`
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return fmt.Sprintf(":%s", e.Port)
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	return e.Env
}

func (e EnvVars) IsDev() bool {
	return e.Env == "DEV"
}

// GetBaseURL returns the public base URL of the site (e.g., "https://example.com").
// Used for redirect URIs handed to the identity provider.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}
