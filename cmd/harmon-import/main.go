// Command harmon-import seeds the canonical store from a YAML ontology
// file. Safe to re-run: existing entities and aliases are reported, not
// duplicated.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/jenezis/harmon/internal/config"
	"github.com/jenezis/harmon/internal/importer"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/internal/storage/postgres"
	"github.com/jenezis/harmon/internal/storage/sqlite"
)

func main() {
	seedPath := flag.String("seed", "", "Path to the YAML ontology seed file (required)")
	flag.Parse()

	if *seedPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	seed, err := importer.LoadSeedFile(*seedPath)
	if err != nil {
		log.Fatalf("Failed to load seed file: %v", err)
	}

	var store storage.Store
	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err = postgres.New(cfg.Storage.PostgresDSN)
	default:
		if mkErr := os.MkdirAll(cfg.Storage.DataPath, 0o755); mkErr != nil {
			log.Fatalf("Failed to create data directory: %v", mkErr)
		}
		store, err = sqlite.New(filepath.Join(cfg.Storage.DataPath, "harmon.db"))
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	report, err := importer.Run(context.Background(), store, seed)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("Import complete: %d entities created, %d already present, %d aliases, %d relationships",
		report.EntitiesCreated, report.EntitiesExisting, report.AliasesAdded, report.RelationshipsAdded)
	for _, reason := range report.Skipped {
		log.Printf("skipped: %s", reason)
	}
}
