// Package config loads application configuration from file and
// environment and validates it before any work is dispatched.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/mindshare-cli/internal/budget"
	"github.com/sells-group/mindshare-cli/internal/extract"
	"github.com/sells-group/mindshare-cli/internal/model"
	"github.com/sells-group/mindshare-cli/internal/query"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig    `yaml:"store" mapstructure:"store"`
	Brands  model.BrandSet `yaml:"brands" mapstructure:"brands"`
	Intents []model.Intent `yaml:"intents" mapstructure:"intents"`
	Targets []model.Target `yaml:"targets" mapstructure:"targets"`
	Keys    KeysConfig     `yaml:"keys" mapstructure:"keys"`
	Budget  budget.Config  `yaml:"budget" mapstructure:"budget"`
	Pricing PricingConfig  `yaml:"pricing" mapstructure:"pricing"`
	Query   QueryConfig    `yaml:"query" mapstructure:"query"`
	Batch   BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Extract ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Server  ServerConfig   `yaml:"server" mapstructure:"server"`
	Log     LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// KeysConfig holds per-provider API credentials.
type KeysConfig struct {
	Anthropic  string `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     string `yaml:"openai" mapstructure:"openai"`
	Perplexity string `yaml:"perplexity" mapstructure:"perplexity"`
}

// Key returns the credential for a provider name, empty if unknown.
func (k KeysConfig) Key(provider string) string {
	switch provider {
	case query.ProviderAnthropic:
		return k.Anthropic
	case query.ProviderOpenAI:
		return k.OpenAI
	case query.ProviderPerplexity:
		return k.Perplexity
	default:
		return ""
	}
}

// PricingConfig locates the pricing table and its refresh cadence.
type PricingConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	RefreshMins int    `yaml:"refresh_mins" mapstructure:"refresh_mins"`
}

// RefreshInterval returns the refresh cadence; zero disables refresh.
func (p PricingConfig) RefreshInterval() time.Duration {
	if p.RefreshMins <= 0 {
		return 0
	}
	return time.Duration(p.RefreshMins) * time.Minute
}

// QueryConfig configures single-call behavior.
type QueryConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts   int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// BatchConfig configures batch dispatch.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExtractConfig configures mention detection and ranking.
type ExtractConfig struct {
	FuzzyEnabled   bool    `yaml:"fuzzy_enabled" mapstructure:"fuzzy_enabled"`
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	LLMRank        bool    `yaml:"llm_rank" mapstructure:"llm_rank"`
	LLMRankModel   string  `yaml:"llm_rank_model" mapstructure:"llm_rank_model"`
}

// ServerConfig configures the report API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MINDSHARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mindshare.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.concurrency", 10)
	v.SetDefault("query.timeout_secs", 30)
	v.SetDefault("query.max_attempts", 3)
	v.SetDefault("extract.fuzzy_enabled", true)
	v.SetDefault("extract.fuzzy_threshold", extract.DefaultFuzzyThreshold)
	v.SetDefault("budget.enabled", true)
	v.SetDefault("budget.assumed_input_tokens", 2000)
	v.SetDefault("budget.assumed_output_tokens", 1000)
	v.SetDefault("budget.safety_multiplier", budget.DefaultSafetyMultiplier)
	v.SetDefault("pricing.refresh_mins", 0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate rejects configurations that would corrupt extraction or fail
// mid-run: short aliases, brand lists colliding under normalization,
// unknown providers, missing credentials, duplicate intent IDs.
func (c *Config) Validate() error {
	if len(c.Brands.Mine) == 0 {
		return eris.New("config: brands.mine must list at least one alias")
	}

	seen := make(map[string]string)
	for _, list := range []struct {
		name    string
		aliases []string
	}{
		{"mine", c.Brands.Mine},
		{"competitors", c.Brands.Competitors},
	} {
		for _, alias := range list.aliases {
			norm := extract.Normalize(alias)
			if len(norm) < 2 {
				return eris.Errorf("config: brand alias %q too short after normalization", alias)
			}
			if prev, ok := seen[norm]; ok && prev != list.name {
				return eris.Errorf("config: alias %q appears in both mine and competitors", alias)
			}
			seen[norm] = list.name
		}
	}

	if len(c.Intents) == 0 {
		return eris.New("config: at least one intent required")
	}
	intentIDs := make(map[string]bool, len(c.Intents))
	for _, intent := range c.Intents {
		if intent.ID == "" || intent.Prompt == "" {
			return eris.Errorf("config: intent %q must have id and prompt", intent.ID)
		}
		if intentIDs[intent.ID] {
			return eris.Errorf("config: duplicate intent id %q", intent.ID)
		}
		intentIDs[intent.ID] = true
	}

	if len(c.Targets) == 0 {
		return eris.New("config: at least one target (provider, model) required")
	}
	for _, target := range c.Targets {
		switch target.Provider {
		case query.ProviderAnthropic, query.ProviderOpenAI, query.ProviderPerplexity:
		default:
			return eris.Errorf("config: unknown provider %q", target.Provider)
		}
		if target.Model == "" {
			return eris.Errorf("config: target for provider %q missing model", target.Provider)
		}
		if c.Keys.Key(target.Provider) == "" {
			return eris.Errorf("config: no API key configured for provider %q", target.Provider)
		}
	}

	if c.Extract.FuzzyThreshold != 0 && (c.Extract.FuzzyThreshold < 0.5 || c.Extract.FuzzyThreshold > 1.0) {
		return eris.Errorf("config: extract.fuzzy_threshold %.2f outside [0.5, 1.0]", c.Extract.FuzzyThreshold)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url required for postgres driver")
	}

	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
