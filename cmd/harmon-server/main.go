// Command harmon-server runs the entity resolution service: the REST
// API, the per-namespace resolution caches, and the background
// enrichment worker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jenezis/harmon/internal/config"
	"github.com/jenezis/harmon/internal/embedding"
	"github.com/jenezis/harmon/internal/enrichment"
	"github.com/jenezis/harmon/internal/notify"
	"github.com/jenezis/harmon/internal/resolver"
	"github.com/jenezis/harmon/internal/server"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/internal/storage/postgres"
	"github.com/jenezis/harmon/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var store storage.Store
	var storePath string
	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err = postgres.New(cfg.Storage.PostgresDSN)
	default:
		if mkErr := os.MkdirAll(cfg.Storage.DataPath, 0o755); mkErr != nil {
			log.Fatalf("Failed to create data directory: %v", mkErr)
		}
		storePath = filepath.Join(cfg.Storage.DataPath, "harmon.db")
		store, err = sqlite.New(storePath)
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build one cache per configured namespace before serving. An empty
	// catalog builds an empty, valid cache; only a failed snapshot is
	// fatal at startup.
	caches := resolver.NewRegistry()
	for _, namespace := range cfg.Resolver.Namespaces {
		cache, err := caches.Holder(namespace).Reload(ctx, store)
		if err != nil {
			log.Fatalf("Failed to build cache for namespace %s: %v", namespace, err)
		}
		log.Printf("cache ready for %s: %d aliases, %d entities", namespace, cache.Size(), cache.EntityCount())
	}

	var embedder resolver.Embedder
	if cfg.Embedding.Enabled {
		embedder = embedding.NewOllamaClient(embedding.OllamaConfig{
			BaseURL:    cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.OllamaModel,
			RatePerSec: cfg.Embedding.RatePerSec,
		})
	}

	res := resolver.New(caches, store, embedder, resolver.Options{
		FuzzyConfident:    cfg.Resolver.FuzzyConfident,
		SemanticConfident: cfg.Resolver.SemanticConfident,
		SuggestionFloor:   cfg.Resolver.SuggestionFloor,
		TopK:              cfg.Resolver.SuggestionTopK,
	})

	addr, wsHub := server.Start(ctx, cfg, store, res, caches)
	log.Printf("Harmon API running at http://%s", addr)

	var worker *enrichment.Service
	if cfg.Enrichment.Enabled {
		worker = enrichment.New(store, caches, enrichment.Options{
			Interval:         cfg.EnrichmentInterval(),
			MinOccurrences:   cfg.Enrichment.MinOccurrences,
			AutoApproveScore: cfg.Enrichment.AutoApproveScore,
			BatchSize:        cfg.Enrichment.BatchSize,
		})
		worker.OnEvent = func(ev enrichment.Event) {
			wsHub.Broadcast(map[string]interface{}{"type": "enrichment_" + ev.Outcome, "event": ev})
		}
		worker.OnChange = func(namespace string) {
			// Promoted aliases only become resolvable after a reload.
			if _, err := caches.Holder(namespace).Reload(ctx, store); err != nil {
				log.Printf("reload after promotion failed for %s: %v", namespace, err)
			}
		}
		worker.Start(ctx)
	}

	var watcher *notify.StoreWatcher
	if cfg.Storage.WatchFile && storePath != "" {
		watcher = notify.NewStoreWatcher(storePath, cfg.ReloadDebounce(), func() {
			for _, namespace := range cfg.Resolver.Namespaces {
				if _, err := caches.Holder(namespace).Reload(context.Background(), store); err != nil {
					log.Printf("watcher reload failed for %s: %v", namespace, err)
				}
			}
		})
		if err := watcher.Start(); err != nil {
			log.Printf("store watcher disabled: %v", err)
			watcher = nil
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	if watcher != nil {
		watcher.Stop()
	}
	if worker != nil {
		worker.Stop()
	}
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}
