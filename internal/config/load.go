package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sakif/lendpal/internal/model"
)

// EnvPrefix is prepended to every environment override, so server.port is
// read from LENDPAL_SERVER_PORT.
const EnvPrefix = "LENDPAL"

// ConfigEnv names a config file when Load is called with an empty path.
const ConfigEnv = EnvPrefix + "_CONFIG"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("server.log_file", "")

	v.SetDefault("storage.driver", "json")
	v.SetDefault("storage.path", "data/lendpal.json")
	v.SetDefault("storage.autosave", true)

	// No usable default; registered so the env override is picked up.
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("lending.default_period", model.DefaultLendPeriod.String())
}

// Load builds the configuration. path names an optional YAML, TOML or JSON
// file; when empty, LENDPAL_CONFIG is consulted. Environment variables win
// over the file, the file wins over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(ConfigEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("config: %s fails %q: %w", verrs[0].Namespace(), verrs[0].Tag(), err)
		}
		return nil, fmt.Errorf("config: validating: %w", err)
	}

	period, err := model.ParseLendPeriod(cfg.Lending.DefaultPeriod)
	if err != nil {
		return nil, fmt.Errorf("config: lending.default_period: %w", err)
	}
	if !period.Positive() {
		return nil, fmt.Errorf("config: lending.default_period %q must be positive", cfg.Lending.DefaultPeriod)
	}
	return &cfg, nil
}
