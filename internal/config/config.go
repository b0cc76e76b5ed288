// Package config loads LendPal settings from defaults, an optional config
// file and LENDPAL_* environment variables.
package config

import (
	"time"

	"github.com/sakif/lendpal/internal/model"
)

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Auth    AuthConfig    `mapstructure:"auth" validate:"required"`
	Lending LendingConfig `mapstructure:"lending" validate:"required"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=text json"`
	// LogFile, when set, receives a rotated copy of everything written to stdout.
	LogFile string `mapstructure:"log_file"`
}

// StorageConfig selects where the registry is persisted.
type StorageConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=json sqlite"`
	Path     string `mapstructure:"path" validate:"required"`
	Autosave bool   `mapstructure:"autosave"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

type LendingConfig struct {
	// DefaultPeriod is the ISO-8601 period given to items created without one.
	DefaultPeriod string `mapstructure:"default_period" validate:"required"`
}

// Period returns DefaultPeriod parsed, or model.DefaultLendPeriod when it
// does not parse. Load rejects such values, so only hand-built configs see
// the fallback.
func (c LendingConfig) Period() model.LendPeriod {
	p, err := model.ParseLendPeriod(c.DefaultPeriod)
	if err != nil || !p.Positive() {
		return model.DefaultLendPeriod
	}
	return p
}
