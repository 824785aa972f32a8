// Package sqlite implements the canonical store on SQLite via
// modernc.org/sqlite. It is the default deployment engine: a single file,
// no external service, good enough write throughput for a low-frequency
// admin/enrichment write path.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/jenezis/harmon/internal/normalize"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens a SQLite canonical store, configures WAL mode, and applies
// the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent
	// load; WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s failed: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *Store) GetDB() *sql.DB { return s.db }

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

// CreateEntity inserts a canonical entity and its self-alias in one
// transaction. The normalized canonical name must not collide with a
// non-archived entity in the namespace, and must not already be claimed
// as an alias of another entity.
func (s *Store) CreateEntity(ctx context.Context, entity *types.CanonicalEntity) (string, error) {
	if entity == nil || entity.Name == "" || entity.Namespace == "" {
		return "", fmt.Errorf("%w: entity name and namespace are required", storage.ErrInvalidInput)
	}

	normalized := normalize.Normalize(entity.Name)
	if normalized == "" {
		return "", fmt.Errorf("%w: entity name normalizes to empty", storage.ErrInvalidInput)
	}

	if entity.ID == "" {
		entity.ID = storage.NewEntityID()
	}
	if entity.Source == "" {
		entity.Source = types.SourceManual
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = time.Now().UTC()
	}
	entity.NormalizedName = normalized

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM canonical_entities WHERE namespace = ? AND normalized_name = ? AND archived = 0`,
		entity.Namespace, normalized).Scan(&existingID)
	switch {
	case err == nil:
		return "", &storage.DuplicateNameError{Namespace: entity.Namespace, Name: entity.Name, ExistingID: existingID}
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("sqlite: duplicate-name check failed: %w", err)
	}

	var ownerID string
	err = tx.QueryRowContext(ctx,
		`SELECT entity_id FROM entity_aliases WHERE namespace = ? AND normalized = ?`,
		entity.Namespace, normalized).Scan(&ownerID)
	switch {
	case err == nil:
		return "", &storage.AmbiguousAliasError{Namespace: entity.Namespace, Alias: entity.Name, OwnerID: ownerID, WantedID: entity.ID}
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("sqlite: alias ownership check failed: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO canonical_entities (id, name, normalized_name, namespace, entity_type, source, archived, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entity.ID, entity.Name, normalized, entity.Namespace, entity.Type,
		string(entity.Source), boolToInt(entity.Archived), encodeEmbedding(entity.Embedding), entity.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert entity: %w", err)
	}

	// The canonical name is itself an alias so exact lookups hit it.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_aliases (id, entity_id, namespace, alias_text, normalized, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		storage.NewAliasID(), entity.ID, entity.Namespace, entity.Name, normalized,
		string(types.ConfidenceExact), entity.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert self-alias: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit failed: %v", storage.ErrStoreUnavailable, err)
	}
	return entity.ID, nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.CanonicalEntity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, normalized_name, namespace, entity_type, source, archived, embedding, created_at
		FROM canonical_entities WHERE id = ?`, id)
	return scanEntity(row)
}

// AddAlias maps an alias to an existing entity. The ownership check and
// the insert run in one transaction; two concurrent writers claiming the
// same normalized alias for different entities cannot both succeed, and
// the unique index backstops the check.
func (s *Store) AddAlias(ctx context.Context, entityID, aliasText string, confidence types.AliasConfidence) (string, error) {
	normalized := normalize.Normalize(aliasText)
	if normalized == "" {
		return "", fmt.Errorf("%w: alias normalizes to empty", storage.ErrInvalidInput)
	}
	if confidence == "" {
		confidence = types.ConfidenceExact
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var namespace string
	err = tx.QueryRowContext(ctx,
		`SELECT namespace FROM canonical_entities WHERE id = ?`, entityID).Scan(&namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: entity %s", storage.ErrNotFound, entityID)
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: entity lookup failed: %w", err)
	}

	var existingAliasID, ownerID string
	err = tx.QueryRowContext(ctx,
		`SELECT id, entity_id FROM entity_aliases WHERE namespace = ? AND normalized = ?`,
		namespace, normalized).Scan(&existingAliasID, &ownerID)
	switch {
	case err == nil:
		if ownerID == entityID {
			// Idempotent: re-adding an alias for its current owner.
			return existingAliasID, nil
		}
		return "", &storage.AmbiguousAliasError{Namespace: namespace, Alias: aliasText, OwnerID: ownerID, WantedID: entityID}
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("sqlite: alias ownership check failed: %w", err)
	}

	aliasID := storage.NewAliasID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_aliases (id, entity_id, namespace, alias_text, normalized, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		aliasID, entityID, namespace, aliasText, normalized, string(confidence), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with another writer; report the actual owner.
			var raceOwner string
			if scanErr := s.db.QueryRowContext(ctx,
				`SELECT entity_id FROM entity_aliases WHERE namespace = ? AND normalized = ?`,
				namespace, normalized).Scan(&raceOwner); scanErr == nil {
				return "", &storage.AmbiguousAliasError{Namespace: namespace, Alias: aliasText, OwnerID: raceOwner, WantedID: entityID}
			}
		}
		return "", fmt.Errorf("sqlite: failed to insert alias: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit failed: %v", storage.ErrStoreUnavailable, err)
	}
	return aliasID, nil
}

// AddRelationship creates a directed edge between two entities in the
// same namespace. Self-loops are rejected; duplicate edges are idempotent.
func (s *Store) AddRelationship(ctx context.Context, fromID, toID, relType string) (string, error) {
	if fromID == toID {
		return "", &storage.SelfLoopError{EntityID: fromID}
	}
	if relType == "" {
		return "", fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	var fromNS, toNS string
	if err := tx.QueryRowContext(ctx, `SELECT namespace FROM canonical_entities WHERE id = ?`, fromID).Scan(&fromNS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: entity %s", storage.ErrNotFound, fromID)
		}
		return "", fmt.Errorf("sqlite: entity lookup failed: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT namespace FROM canonical_entities WHERE id = ?`, toID).Scan(&toNS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: entity %s", storage.ErrNotFound, toID)
		}
		return "", fmt.Errorf("sqlite: entity lookup failed: %w", err)
	}
	if fromNS != toNS {
		return "", fmt.Errorf("%w: relationship crosses namespaces (%s vs %s)", storage.ErrInvalidInput, fromNS, toNS)
	}

	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM entity_relationships WHERE from_id = ? AND to_id = ? AND rel_type = ?`,
		fromID, toID, relType).Scan(&existingID)
	if err == nil {
		return existingID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqlite: relationship lookup failed: %w", err)
	}

	relID := storage.NewRelationshipID()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entity_relationships (id, from_id, to_id, rel_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		relID, fromID, toID, relType, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to insert relationship: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%w: commit failed: %v", storage.ErrStoreUnavailable, err)
	}
	return relID, nil
}

// ArchiveEntity marks an entity archived. Its aliases keep resolving, and
// because they do, the exact normalized name stays claimed; only the
// active-name uniqueness check stops counting it.
func (s *Store) ArchiveEntity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE canonical_entities SET archived = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to archive entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entity %s", storage.ErrNotFound, id)
	}
	return nil
}

// Stats reports catalog counts for a namespace.
func (s *Store) Stats(ctx context.Context, namespace string) (*storage.Stats, error) {
	stats := &storage.Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM canonical_entities WHERE namespace = ?`, &stats.Entities},
		{`SELECT COUNT(*) FROM entity_aliases WHERE namespace = ?`, &stats.Aliases},
		{`SELECT COUNT(*) FROM entity_relationships r JOIN canonical_entities e ON r.from_id = e.id WHERE e.namespace = ?`, &stats.Relationships},
		{`SELECT COUNT(*) FROM enrichment_queue WHERE namespace = ? AND status = 'pending'`, &stats.QueuePending},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query, namespace).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("sqlite: stats query failed: %w", err)
		}
	}
	return stats, nil
}

// Snapshot reads all entities, aliases and relationships of one namespace
// in a single transaction. SQLite's snapshot isolation inside a read
// transaction guarantees the view cannot observe a half-committed alias
// insert. Archived entities are included: they must remain resolvable.
func (s *Store) Snapshot(ctx context.Context, namespace string) (*storage.SnapshotData, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	snap := &storage.SnapshotData{Namespace: namespace, TakenAt: time.Now().UTC()}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, normalized_name, namespace, entity_type, source, archived, embedding, created_at
		FROM canonical_entities WHERE namespace = ? ORDER BY id`, namespace)
	if err != nil {
		return nil, fmt.Errorf("sqlite: entity snapshot failed: %w", err)
	}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		snap.Entities = append(snap.Entities, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: entity snapshot failed: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT id, entity_id, alias_text, normalized, confidence, created_at
		FROM entity_aliases WHERE namespace = ? ORDER BY id`, namespace)
	if err != nil {
		return nil, fmt.Errorf("sqlite: alias snapshot failed: %w", err)
	}
	for rows.Next() {
		a := &types.Alias{}
		var confidence string
		if err := rows.Scan(&a.ID, &a.EntityID, &a.Text, &a.Normalized, &confidence, &a.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: alias scan failed: %w", err)
		}
		a.Confidence = types.AliasConfidence(confidence)
		snap.Aliases = append(snap.Aliases, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: alias snapshot failed: %w", err)
	}
	rows.Close()

	rows, err = tx.QueryContext(ctx, `
		SELECT r.id, r.from_id, r.to_id, r.rel_type, r.created_at
		FROM entity_relationships r
		JOIN canonical_entities e ON r.from_id = e.id
		WHERE e.namespace = ? ORDER BY r.id`, namespace)
	if err != nil {
		return nil, fmt.Errorf("sqlite: relationship snapshot failed: %w", err)
	}
	for rows.Next() {
		r := &types.Relationship{}
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &r.Type, &r.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: relationship scan failed: %w", err)
		}
		snap.Relationships = append(snap.Relationships, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: relationship snapshot failed: %w", err)
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: snapshot commit failed: %v", storage.ErrStoreUnavailable, err)
	}
	return snap, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.CanonicalEntity, error) {
	e := &types.CanonicalEntity{}
	var source string
	var archived int
	var embedding []byte
	err := row.Scan(&e.ID, &e.Name, &e.NormalizedName, &e.Namespace, &e.Type, &source, &archived, &embedding, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: entity scan failed: %w", err)
	}
	e.Source = types.EntitySource(source)
	e.Archived = archived != 0
	e.Embedding = decodeEmbedding(embedding)
	return e, nil
}

// encodeEmbedding serializes a vector as little-endian float32 bytes.
// A nil or empty vector stores as NULL.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding deserializes a little-endian float32 vector. Truncated
// blobs decode to nil rather than a partial vector.
func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. modernc.org/sqlite surfaces these as plain errors carrying the
// SQLITE_CONSTRAINT_UNIQUE message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
