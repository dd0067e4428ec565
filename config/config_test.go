package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Strict {
		t.Error("strict mode must default to on")
	}
	if cfg.TopSpells != 5 {
		t.Errorf("top_spells = %d", cfg.TopSpells)
	}
	if cfg.DistanceThreshold != 0.4 {
		t.Errorf("distance_threshold = %v", cfg.DistanceThreshold)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("concurrency = %d", cfg.Concurrency)
	}
	if cfg.Store.Kind != StoreEmbedding {
		t.Errorf("store.kind = %q", cfg.Store.Kind)
	}
	if cfg.Provider.GenerationModel != "gemini-2.5-flash" {
		t.Errorf("generation_model = %q", cfg.Provider.GenerationModel)
	}
	if cfg.MagetoolsRoot() != filepath.Join(root, ".magetools") {
		t.Errorf("MagetoolsRoot = %q", cfg.MagetoolsRoot())
	}
	if cfg.DBPath() != filepath.Join(root, ".magetools", ".spellbook") {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
}

func TestLoadConfigFile(t *testing.T) {
	root := t.TempDir()
	yaml := `
strict: false
top_spells: 10
distance_threshold: 0.6
store:
  kind: keyword
provider:
  generation_model: other-model
`
	if err := os.WriteFile(filepath.Join(root, "magetools.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Strict {
		t.Error("strict not overridden by config file")
	}
	if cfg.TopSpells != 10 || cfg.DistanceThreshold != 0.6 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Store.Kind != StoreKeyword {
		t.Errorf("store.kind = %q", cfg.Store.Kind)
	}
	if cfg.Provider.GenerationModel != "other-model" {
		t.Errorf("generation_model = %q", cfg.Provider.GenerationModel)
	}
	if cfg.Provider.EmbedModel != "text-embedding-004" {
		t.Errorf("unset values must keep defaults, embed_model = %q", cfg.Provider.EmbedModel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAGETOOLS_DEBUG", "true")
	t.Setenv("MAGETOOLS_TOP_SPELLS", "7")
	t.Setenv("MAGETOOLS_PROVIDER_API_KEY", "secret")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Debug {
		t.Error("MAGETOOLS_DEBUG not applied")
	}
	if cfg.TopSpells != 7 {
		t.Errorf("top_spells = %d", cfg.TopSpells)
	}
	if cfg.Provider.APIKey != "secret" {
		t.Errorf("api_key = %q", cfg.Provider.APIKey)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "magetools.yaml"), []byte("strict: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(root); err == nil {
		t.Fatal("malformed config file must be an error")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			TopSpells:         5,
			DistanceThreshold: 0.4,
			Concurrency:       5,
			Store:             StoreConfig{Kind: StoreEmbedding},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero top_spells", func(c *Config) { c.TopSpells = 0 }},
		{"negative threshold", func(c *Config) { c.DistanceThreshold = -0.1 }},
		{"huge threshold", func(c *Config) { c.DistanceThreshold = 3 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"unknown store kind", func(c *Config) { c.Store.Kind = "chroma" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := base().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}
