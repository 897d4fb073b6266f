package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skyarchive/museum-dl/internal/model"
)

// Settings holds all configuration options.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// config file (YAML or JSON), and environment variables prefixed MUSEUM_DL_.
// Provider credentials are bound to their conventional unprefixed variables
// so a plain .env file works.
type Settings struct {
	// Harvest settings
	OutputRoot string   `mapstructure:"output_root"`
	Terms      []string `mapstructure:"terms"`
	Exclusions []string `mapstructure:"exclusions"`
	Providers  []string `mapstructure:"providers"`
	MaxResults int      `mapstructure:"max_results"`
	PageSize   int      `mapstructure:"page_size"`
	DryRun     bool     `mapstructure:"dry_run"`

	// Politeness settings
	Workers           int           `mapstructure:"workers"`
	PageDelay         time.Duration `mapstructure:"page_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	UserAgent         string        `mapstructure:"user_agent"`

	// Provider credentials, keyed by provider name
	Keys map[string]string `mapstructure:"keys"`

	// Logging settings
	LogLevel    string `mapstructure:"log_level"`
	Development bool   `mapstructure:"development"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	return &Settings{
		OutputRoot: "museum_data",
		Terms:      []string{"cloud", "sky", "weather", "mist", "fog", "atmosphere"},
		Exclusions: []string{"saint cloud", "saint-cloud", "st. cloud", "st cloud"},
		Providers:  nil, // nil means every registered provider
		MaxResults: 100,
		PageSize:   100,

		Workers:           5,
		PageDelay:         time.Second,
		RequestsPerSecond: 2,

		Keys: map[string]string{},

		LogLevel: "info",
	}
}

// keyEnvVars maps provider names to the unprefixed environment variables
// their credentials conventionally live in.
var keyEnvVars = map[string]string{
	"harvard":      "HARVARD_API_KEY",
	"rijksmuseum":  "RIJKSMUSEUM_API_KEY",
	"europeana":    "EUROPEANA_API_KEY",
	"cooperhewitt": "COOPERHEWITT_ACCESS_TOKEN",
	"smithsonian":  "SMITHSONIAN_API_KEY",
}

// Load builds Settings from defaults, the optional config file at cfgFile
// (./museum-dl.yaml when empty), and the environment.
func Load(cfgFile string) (*Settings, error) {
	v := viper.New()

	// Every mapstructure key needs a registered default: AutomaticEnv only
	// consults the environment for keys viper already knows about.
	defaults := DefaultSettings()
	v.SetDefault("output_root", defaults.OutputRoot)
	v.SetDefault("terms", defaults.Terms)
	v.SetDefault("exclusions", defaults.Exclusions)
	v.SetDefault("providers", defaults.Providers)
	v.SetDefault("max_results", defaults.MaxResults)
	v.SetDefault("page_size", defaults.PageSize)
	v.SetDefault("dry_run", defaults.DryRun)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("page_delay", defaults.PageDelay)
	v.SetDefault("requests_per_second", defaults.RequestsPerSecond)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("development", defaults.Development)

	v.SetEnvPrefix("MUSEUM_DL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, envVar := range keyEnvVars {
		if err := v.BindEnv("keys."+name, envVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", envVar, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("museum-dl")
		v.AddConfigPath(".")
	}

	// The default config file is optional; an explicitly named or broken
	// one is fatal.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	settings := DefaultSettings()
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return settings, nil
}

// KeyFor returns the credential configured for the named provider, or "".
func (s *Settings) KeyFor(provider string) string {
	return s.Keys[provider]
}

// Queries expands the configured terms into per-term harvest queries.
func (s *Settings) Queries() []model.Query {
	queries := make([]model.Query, 0, len(s.Terms))
	for _, term := range s.Terms {
		queries = append(queries, model.Query{
			Term:       term,
			Exclusions: s.Exclusions,
			Cap:        s.MaxResults,
			PageSize:   s.PageSize,
		})
	}
	return queries
}

// Redact shortens a credential for echoing in logs: the first five
// characters followed by "[...]". Unset keys read "[unset]".
func Redact(key string) string {
	if key == "" {
		return "[unset]"
	}
	if len(key) <= 5 {
		return key[:1] + "[...]"
	}
	return key[:5] + "[...]"
}
