// Package config loads engine settings from the project's magetools.yaml
// file and MAGETOOLS_* environment variables, with built-in defaults for
// everything else.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Store kinds selectable via store.kind.
const (
	StoreEmbedding = "embedding"
	StoreKeyword   = "keyword"
)

// ConfigFileName is the optional per-project configuration file, looked up
// in the project root.
const ConfigFileName = "magetools"

// ProviderConfig selects the embedding and summarization endpoint.
type ProviderConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	EmbedModel      string `mapstructure:"embed_model"`
	GenerationModel string `mapstructure:"generation_model"`
}

// StoreConfig selects the vector store implementation.
type StoreConfig struct {
	Kind string `mapstructure:"kind"`
}

// Config holds all runtime configuration for one engine instance. Values are
// populated from magetools.yaml and MAGETOOLS_* env vars.
type Config struct {
	RootDir           string         `mapstructure:"root_dir"`
	MagetoolsDir      string         `mapstructure:"magetools_dir"`
	DBFolder          string         `mapstructure:"db_folder"`
	Strict            bool           `mapstructure:"strict"`
	Debug             bool           `mapstructure:"debug"`
	TopSpells         int            `mapstructure:"top_spells"`
	DistanceThreshold float64        `mapstructure:"distance_threshold"`
	Concurrency       int            `mapstructure:"concurrency"`
	Store             StoreConfig    `mapstructure:"store"`
	Provider          ProviderConfig `mapstructure:"provider"`
}

// MagetoolsRoot is the directory holding the spell collections.
func (c Config) MagetoolsRoot() string {
	return filepath.Join(c.RootDir, c.MagetoolsDir)
}

// DBPath is the directory holding the vector store artifacts.
func (c Config) DBPath() string {
	return filepath.Join(c.MagetoolsRoot(), c.DBFolder)
}

// Load reads configuration for the project rooted at rootDir. A missing
// config file is not an error; malformed YAML is.
func Load(rootDir string) (Config, error) {
	if rootDir == "" {
		rootDir = "."
	}

	v := viper.New()
	v.SetDefault("root_dir", rootDir)
	v.SetDefault("magetools_dir", ".magetools")
	v.SetDefault("db_folder", ".spellbook")
	v.SetDefault("strict", true)
	v.SetDefault("debug", false)
	v.SetDefault("top_spells", 5)
	v.SetDefault("distance_threshold", 0.4)
	v.SetDefault("concurrency", 5)
	v.SetDefault("store.kind", StoreEmbedding)
	v.SetDefault("provider.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.embed_model", "text-embedding-004")
	v.SetDefault("provider.generation_model", "gemini-2.5-flash")

	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(rootDir)

	v.SetEnvPrefix("MAGETOOLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.TopSpells < 1 {
		return fmt.Errorf("top_spells must be positive, got %d", c.TopSpells)
	}
	if c.DistanceThreshold < 0 || c.DistanceThreshold > 2 {
		return fmt.Errorf("distance_threshold must be in [0, 2], got %v", c.DistanceThreshold)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	switch c.Store.Kind {
	case StoreEmbedding, StoreKeyword:
	default:
		return fmt.Errorf("store.kind must be %q or %q, got %q", StoreEmbedding, StoreKeyword, c.Store.Kind)
	}
	return nil
}
