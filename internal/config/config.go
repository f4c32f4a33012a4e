// Package config loads rulec settings from rulec.yaml and RULEC_ environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file looked up without an explicit path.
const FileName = "rulec"

type Config struct {
	Output      string   `mapstructure:"output"`
	Format      string   `mapstructure:"format"`
	Parallelism int      `mapstructure:"parallelism"`
	Extensions  []string `mapstructure:"extensions"`
	LogLevel    string   `mapstructure:"log_level"`
	// Namespaces lists the namespace URIs the host document model knows.
	// When empty, namespace availability is not checked.
	Namespaces []string `mapstructure:"namespaces"`
}

// Debug reports whether progress logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", "ruleset.json")
	v.SetDefault("format", "json")
	v.SetDefault("parallelism", 4)
	v.SetDefault("extensions", []string{".xule"})
	v.SetDefault("log_level", "info")
	v.SetDefault("namespaces", []string{})
}

// Load reads the config. With an empty path, rulec.yaml is searched in the
// working directory, then in ~/.rulec; a missing file leaves the defaults.
// An explicit path must exist. Environment variables such as RULEC_OUTPUT
// override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RULEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".rulec"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Parallelism < 1 {
		return nil, fmt.Errorf("parallelism must be at least 1, got %d", cfg.Parallelism)
	}
	switch cfg.Format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("format must be json or yaml, got %q", cfg.Format)
	}
	return &cfg, nil
}
