package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 7171 {
		t.Errorf("port = %d, want 7171", cfg.Server.Port)
	}
	if cfg.Addr() != "127.0.0.1:7171" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if cfg.Storage.StorageEngine != "sqlite" {
		t.Errorf("engine = %q, want sqlite", cfg.Storage.StorageEngine)
	}
	if len(cfg.Resolver.Namespaces) != 1 || cfg.Resolver.Namespaces[0] != "default" {
		t.Errorf("namespaces = %v", cfg.Resolver.Namespaces)
	}
	if cfg.Resolver.FuzzyConfident != 0.85 {
		t.Errorf("fuzzy confident = %v", cfg.Resolver.FuzzyConfident)
	}
	if !cfg.Enrichment.Enabled {
		t.Error("enrichment should default on")
	}
	if cfg.Embedding.Enabled {
		t.Error("embedding should default off")
	}
	if cfg.Security.APIToken != "" {
		t.Error("no token by default")
	}
	if cfg.EnrichmentInterval() != 60*time.Second {
		t.Errorf("enrichment interval = %v", cfg.EnrichmentInterval())
	}
	if cfg.ReloadDebounce() != 2*time.Second {
		t.Errorf("reload debounce = %v", cfg.ReloadDebounce())
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HARMON_PORT", "9999")
	t.Setenv("HARMON_HOST", "0.0.0.0")
	t.Setenv("HARMON_NAMESPACES", "tech, people ,orgs")
	t.Setenv("HARMON_FUZZY_CONFIDENT", "0.9")
	t.Setenv("HARMON_EMBEDDING_ENABLED", "yes")
	t.Setenv("HARMON_ENRICHMENT_ENABLED", "0")
	t.Setenv("HARMON_API_TOKEN", "secret")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9999" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	want := []string{"tech", "people", "orgs"}
	if len(cfg.Resolver.Namespaces) != 3 {
		t.Fatalf("namespaces = %v", cfg.Resolver.Namespaces)
	}
	for i, ns := range want {
		if cfg.Resolver.Namespaces[i] != ns {
			t.Errorf("namespace %d = %q, want %q", i, cfg.Resolver.Namespaces[i], ns)
		}
	}
	if cfg.Resolver.FuzzyConfident != 0.9 {
		t.Errorf("fuzzy confident = %v", cfg.Resolver.FuzzyConfident)
	}
	if !cfg.Embedding.Enabled {
		t.Error("embedding should be enabled")
	}
	if cfg.Enrichment.Enabled {
		t.Error("enrichment should be disabled")
	}
	if cfg.Security.APIToken != "secret" {
		t.Errorf("token = %q", cfg.Security.APIToken)
	}
}

func TestLoadConfigUnparseableFallsBack(t *testing.T) {
	t.Setenv("HARMON_PORT", "not-a-number")
	t.Setenv("HARMON_FUZZY_CONFIDENT", "not-a-float")
	t.Setenv("HARMON_WATCH_STORE_FILE", "maybe")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 7171 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
	if cfg.Resolver.FuzzyConfident != 0.85 {
		t.Errorf("fuzzy confident = %v, want default", cfg.Resolver.FuzzyConfident)
	}
	if cfg.Storage.WatchFile {
		t.Error("unrecognized bool must keep the default")
	}
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires dsn", func(t *testing.T) {
		t.Setenv("HARMON_STORAGE_ENGINE", "postgres")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected an error without a DSN")
		}
		t.Setenv("HARMON_POSTGRES_DSN", "postgres://localhost/harmon")
		if _, err := LoadConfig(); err != nil {
			t.Errorf("with DSN: %v", err)
		}
	})

	t.Run("unknown engine", func(t *testing.T) {
		t.Setenv("HARMON_STORAGE_ENGINE", "oracle")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected an error for an unknown engine")
		}
	})

	t.Run("floor above threshold", func(t *testing.T) {
		t.Setenv("HARMON_SUGGESTION_FLOOR", "0.95")
		t.Setenv("HARMON_FUZZY_CONFIDENT", "0.85")
		if _, err := LoadConfig(); err == nil {
			t.Error("expected an error when the floor exceeds the threshold")
		}
	})
}
