// Package importer seeds the canonical store from a YAML ontology file.
// The seed format declares entities with their aliases and parents, plus
// optional free-form relationships:
//
//	namespace: default
//	entities:
//	  - name: Kubernetes
//	    type: technology
//	    aliases: [k8s, kube]
//	    parents: [Container Orchestration]
//	relationships:
//	  - from: Kubernetes
//	    to: Google
//	    type: originated_at
//
// Duplicate names and conflicting aliases are reported, never fatal: a
// re-run against an already seeded store is safe.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jenezis/harmon/internal/normalize"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// ParentRelType is the relationship type used for declared parents.
const ParentRelType = "is_a"

// SeedFile is the YAML ontology document.
type SeedFile struct {
	Namespace     string             `yaml:"namespace"`
	Entities      []SeedEntity       `yaml:"entities"`
	Relationships []SeedRelationship `yaml:"relationships"`
}

// SeedEntity declares one canonical entity.
type SeedEntity struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Aliases []string `yaml:"aliases"`
	Parents []string `yaml:"parents"`
}

// SeedRelationship declares a directed edge by entity name.
type SeedRelationship struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Type string `yaml:"type"`
}

// Report summarizes one import run.
type Report struct {
	EntitiesCreated    int
	EntitiesExisting   int
	AliasesAdded       int
	RelationshipsAdded int
	Skipped            []string // human-readable reasons for skipped rows
}

// LoadSeedFile reads and parses a YAML ontology file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("importer: failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses YAML seed data and validates the document shape.
func ParseSeed(data []byte) (*SeedFile, error) {
	seed := &SeedFile{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, fmt.Errorf("importer: invalid YAML: %w", err)
	}
	if seed.Namespace == "" {
		seed.Namespace = "default"
	}
	if len(seed.Entities) == 0 {
		return nil, errors.New("importer: seed file declares no entities")
	}
	for i, e := range seed.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("importer: entity %d has no name", i)
		}
	}
	return seed, nil
}

// Run applies a seed document to the store. Entities are created first,
// then aliases, then parent and declared relationships, so forward
// references between entities in the same file work. Rows that conflict
// with existing data are recorded in the report and skipped.
func Run(ctx context.Context, store storage.EntityStore, seed *SeedFile) (*Report, error) {
	report := &Report{}

	// Normalized name -> entity ID, for resolving parents and
	// relationship endpoints declared in this file.
	idByName := make(map[string]string, len(seed.Entities))

	for _, se := range seed.Entities {
		entity := &types.CanonicalEntity{
			Name:      se.Name,
			Namespace: seed.Namespace,
			Type:      se.Type,
			Source:    types.SourceManual,
		}
		id, err := store.CreateEntity(ctx, entity)
		if err != nil {
			var dup *storage.DuplicateNameError
			if errors.As(err, &dup) {
				// Already seeded; aliases and parents still apply.
				idByName[normalize.Normalize(se.Name)] = dup.ExistingID
				report.EntitiesExisting++
				continue
			}
			return report, fmt.Errorf("importer: create %q: %w", se.Name, err)
		}
		idByName[normalize.Normalize(se.Name)] = id
		report.EntitiesCreated++
	}

	for _, se := range seed.Entities {
		entityID := idByName[normalize.Normalize(se.Name)]
		if entityID == "" {
			continue
		}
		for _, alias := range se.Aliases {
			_, err := store.AddAlias(ctx, entityID, alias, types.ConfidenceHumanApproved)
			if err != nil {
				var ambiguous *storage.AmbiguousAliasError
				if errors.As(err, &ambiguous) {
					report.Skipped = append(report.Skipped,
						fmt.Sprintf("alias %q of %q: %v", alias, se.Name, err))
					continue
				}
				return report, fmt.Errorf("importer: alias %q of %q: %w", alias, se.Name, err)
			}
			report.AliasesAdded++
		}
	}

	for _, se := range seed.Entities {
		fromID := idByName[normalize.Normalize(se.Name)]
		if fromID == "" {
			continue
		}
		for _, parent := range se.Parents {
			toID := idByName[normalize.Normalize(parent)]
			if toID == "" {
				report.Skipped = append(report.Skipped,
					fmt.Sprintf("parent %q of %q: not declared in seed file", parent, se.Name))
				continue
			}
			if err := addSeedRelationship(ctx, store, report, fromID, toID, ParentRelType,
				fmt.Sprintf("parent %q of %q", parent, se.Name)); err != nil {
				return report, err
			}
		}
	}

	for _, sr := range seed.Relationships {
		fromID := idByName[normalize.Normalize(sr.From)]
		toID := idByName[normalize.Normalize(sr.To)]
		if fromID == "" || toID == "" {
			report.Skipped = append(report.Skipped,
				fmt.Sprintf("relationship %q -> %q: endpoint not declared in seed file", sr.From, sr.To))
			continue
		}
		relType := sr.Type
		if relType == "" {
			relType = "related_to"
		}
		if err := addSeedRelationship(ctx, store, report, fromID, toID, relType,
			fmt.Sprintf("relationship %q -> %q", sr.From, sr.To)); err != nil {
			return report, err
		}
	}

	return report, nil
}

func addSeedRelationship(ctx context.Context, store storage.EntityStore, report *Report, fromID, toID, relType, label string) error {
	_, err := store.AddRelationship(ctx, fromID, toID, relType)
	if err != nil {
		var selfLoop *storage.SelfLoopError
		if errors.As(err, &selfLoop) {
			report.Skipped = append(report.Skipped, fmt.Sprintf("%s: %v", label, err))
			return nil
		}
		return fmt.Errorf("importer: %s: %w", label, err)
	}
	report.RelationshipsAdded++
	return nil
}
