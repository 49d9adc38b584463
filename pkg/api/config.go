package api

import (
	"os"
	"time"
)

// EnvAPISecret overrides the configured signing secret.
const EnvAPISecret = "SIPAUTH_API_SECRET"

// APIConfig configures the HTTP boundary: the decision endpoint used by the
// signaling layer and the admin endpoints.
type APIConfig struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means there is no timeout.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// JWT configures the bearer tokens accepted by the admin endpoints.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig configures admin token signing.
type JWTConfig struct {
	// Secret is the HMAC signing key. At least 32 characters. Without a
	// secret the admin endpoints are not mounted.
	Secret string `mapstructure:"secret" validate:"omitempty,min=32" yaml:"secret,omitempty"`

	// AccessTokenDuration is the lifetime of minted tokens.
	// Default: 1h
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" yaml:"access_token_duration"`
}

// ApplyDefaults fills in zero values.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.JWT.AccessTokenDuration == 0 {
		c.JWT.AccessTokenDuration = time.Hour
	}
}

// GetJWTSecret returns the signing secret, preferring SIPAUTH_API_SECRET.
func (c *APIConfig) GetJWTSecret() string {
	if secret := os.Getenv(EnvAPISecret); secret != "" {
		return secret
	}
	return c.JWT.Secret
}
