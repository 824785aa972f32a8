package postgres

// Schema is the embedded DDL for the canonical store. All statements are
// idempotent (IF NOT EXISTS) so applying the schema at open is safe.
//
// Mirrors the SQLite schema with Postgres types: TIMESTAMPTZ timestamps,
// a native BOOLEAN archived flag, and a partial unique index for the
// active-name invariant.
const Schema = `
CREATE TABLE IF NOT EXISTS canonical_entities (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	namespace       TEXT NOT NULL,
	entity_type     TEXT NOT NULL DEFAULT '',
	source          TEXT NOT NULL DEFAULT 'manual',
	archived        BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_active_name
	ON canonical_entities(namespace, normalized_name) WHERE archived = FALSE;

CREATE INDEX IF NOT EXISTS idx_entities_namespace
	ON canonical_entities(namespace);

CREATE TABLE IF NOT EXISTS entity_aliases (
	id         TEXT PRIMARY KEY,
	entity_id  TEXT NOT NULL REFERENCES canonical_entities(id),
	namespace  TEXT NOT NULL,
	alias_text TEXT NOT NULL,
	normalized TEXT NOT NULL,
	confidence TEXT NOT NULL DEFAULT 'exact',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_aliases_ns_normalized
	ON entity_aliases(namespace, normalized);

CREATE INDEX IF NOT EXISTS idx_aliases_entity
	ON entity_aliases(entity_id);

CREATE TABLE IF NOT EXISTS entity_relationships (
	id         TEXT PRIMARY KEY,
	from_id    TEXT NOT NULL REFERENCES canonical_entities(id),
	to_id      TEXT NOT NULL REFERENCES canonical_entities(id),
	rel_type   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(from_id, to_id, rel_type),
	CHECK (from_id <> to_id)
);

CREATE TABLE IF NOT EXISTS enrichment_queue (
	id                  TEXT PRIMARY KEY,
	namespace           TEXT NOT NULL,
	mention             TEXT NOT NULL,
	normalized          TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	occurrences         INTEGER NOT NULL DEFAULT 1,
	suggested_entity_id TEXT NOT NULL DEFAULT '',
	suggested_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	resolved_alias_id   TEXT NOT NULL DEFAULT '',
	reject_reason       TEXT NOT NULL DEFAULT '',
	first_seen          TIMESTAMPTZ NOT NULL,
	last_seen           TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_ns_normalized
	ON enrichment_queue(namespace, normalized);

CREATE INDEX IF NOT EXISTS idx_queue_pending
	ON enrichment_queue(namespace, status, occurrences);
`

// MigrationPgvector adds the embedding column and its cosine index. Applied
// only when the pgvector extension is available; without it the embedding
// column is absent and semantic candidate queries are disabled.
const MigrationPgvector = `
ALTER TABLE canonical_entities ADD COLUMN IF NOT EXISTS embedding vector(768);

CREATE INDEX IF NOT EXISTS idx_entities_embedding_cosine
	ON canonical_entities USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
