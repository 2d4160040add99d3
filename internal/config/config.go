// Package config loads pipeline configuration from the environment and an
// optional YAML file. Credentials gate whether each channel and AI provider
// is "configured"; an unconfigured channel is surfaced as such by the
// pipeline instead of failing generically.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// AI providers.
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string `mapstructure:"openai_base_url"`
	OpenAIModel     string `mapstructure:"openai_model"`

	// Search providers.
	SerpAPIKey         string `mapstructure:"serpapi_key"`
	SerpAPIBaseURL     string `mapstructure:"serpapi_base_url"`
	PatentsViewAPIKey  string `mapstructure:"patentsview_api_key"`
	PatentsViewBaseURL string `mapstructure:"patentsview_base_url"`

	// Storage.
	CacheDBPath  string `mapstructure:"cache_db_path"`
	MemoryDBPath string `mapstructure:"memory_db_path"`

	// Limits.
	WebMaxResults    int `mapstructure:"web_max_results"`
	RetailMaxResults int `mapstructure:"retail_max_results"`
	PatentMaxResults int `mapstructure:"patent_max_results"`
}

// Load reads config from NOVELTY_CHECK_* environment variables, the
// conventional provider env vars, and cfgFile (or ./novelty-check.yaml) when
// present. A missing config file is not an error.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOVELTY_CHECK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Provider credentials follow each provider's conventional name.
	_ = v.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("serpapi_key", "SERPAPI_API_KEY")
	_ = v.BindEnv("patentsview_api_key", "PATENTSVIEW_API_KEY")

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key without a default is bound explicitly to its NOVELTY_CHECK_ name.
	for _, key := range []string{
		"anthropic_api_key", "anthropic_model",
		"openai_api_key", "openai_base_url", "openai_model",
		"serpapi_key", "serpapi_base_url",
		"patentsview_api_key", "patentsview_base_url",
	} {
		_ = v.BindEnv(key)
	}

	v.SetDefault("cache_db_path", "novelty-cache.db")
	v.SetDefault("memory_db_path", "novelty-memory.db")
	v.SetDefault("web_max_results", 10)
	v.SetDefault("retail_max_results", 10)
	v.SetDefault("patent_max_results", 20)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	} else {
		v.SetConfigName("novelty-check")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		_ = v.ReadInConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) WebConfigured() bool    { return strings.TrimSpace(c.SerpAPIKey) != "" }
func (c Config) RetailConfigured() bool { return strings.TrimSpace(c.SerpAPIKey) != "" }
func (c Config) PatentConfigured() bool { return strings.TrimSpace(c.PatentsViewAPIKey) != "" }

func (c Config) AnthropicConfigured() bool { return strings.TrimSpace(c.AnthropicAPIKey) != "" }
func (c Config) OpenAIConfigured() bool    { return strings.TrimSpace(c.OpenAIAPIKey) != "" }
func (c Config) AnyAIConfigured() bool     { return c.AnthropicConfigured() || c.OpenAIConfigured() }
