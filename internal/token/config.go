package token

import (
	"os"
	"strings"
	"time"
)

// Config defines runtime configuration for signed tokens.
type Config struct {
	// Issuer is the value set in the "iss" claim.
	Issuer string

	// TTL per token kind.
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ActivationTTL time.Duration
	ResetTTL      time.Duration

	// ClockSkew is the allowed time skew during verification.
	ClockSkew time.Duration

	// SecretKey signs tokens (HS256). Must be at least 32 bytes.
	SecretKey []byte
}

// DefaultConfig returns defaults suitable for development; the secret must
// still be provided.
func DefaultConfig() Config {
	return Config{
		Issuer:        "authcore",
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		ActivationTTL: 48 * time.Hour,
		ResetTTL:      time.Hour,
		ClockSkew:     30 * time.Second,
	}
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - AUTHCORE_JWT_SECRET (>= 32 bytes)
//
// Optional (durations must be valid Go duration strings):
//   - AUTHCORE_TOKEN_ISSUER
//   - AUTHCORE_TOKEN_ACCESS_TTL
//   - AUTHCORE_TOKEN_REFRESH_TTL
//   - AUTHCORE_TOKEN_ACTIVATION_TTL
//   - AUTHCORE_TOKEN_RESET_TTL
//   - AUTHCORE_TOKEN_CLOCK_SKEW
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("AUTHCORE_TOKEN_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	for _, f := range []struct {
		env string
		dst *time.Duration
	}{
		{"AUTHCORE_TOKEN_ACCESS_TTL", &cfg.AccessTTL},
		{"AUTHCORE_TOKEN_REFRESH_TTL", &cfg.RefreshTTL},
		{"AUTHCORE_TOKEN_ACTIVATION_TTL", &cfg.ActivationTTL},
		{"AUTHCORE_TOKEN_RESET_TTL", &cfg.ResetTTL},
	} {
		if v := os.Getenv(f.env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return Config{}, ErrConfig
			}
			*f.dst = d
		}
	}

	if v := os.Getenv("AUTHCORE_TOKEN_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	secret := strings.TrimSpace(os.Getenv("AUTHCORE_JWT_SECRET"))
	if len(secret) < 32 {
		return Config{}, ErrConfig
	}
	cfg.SecretKey = []byte(secret)

	// Refresh must outlive access or refresh flows make no sense.
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}

// Validate reports configuration errors for programmatic construction.
func (c Config) Validate() error {
	if len(c.SecretKey) < 32 {
		return ErrConfig
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ActivationTTL <= 0 || c.ResetTTL <= 0 {
		return ErrConfig
	}
	if c.ClockSkew < 0 {
		return ErrConfig
	}
	if c.Issuer == "" {
		return ErrConfig
	}
	return nil
}
