package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// RecordMiss upserts an enrichment queue item for a mention that failed
// resolution. Repeated misses on the same normalized text increment the
// occurrence count; the best suggestion is refreshed on every miss.
func (s *Store) RecordMiss(ctx context.Context, namespace, mention, normalized, suggestedID string, suggestedScore float64) (string, error) {
	if normalized == "" {
		return "", fmt.Errorf("%w: normalized mention is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO enrichment_queue
			(id, namespace, mention, normalized, status, occurrences, suggested_entity_id, suggested_score, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $8)
		ON CONFLICT (namespace, normalized) DO UPDATE SET
			occurrences = enrichment_queue.occurrences + 1,
			suggested_entity_id = EXCLUDED.suggested_entity_id,
			suggested_score = EXCLUDED.suggested_score,
			last_seen = EXCLUDED.last_seen
		RETURNING id`,
		storage.NewQueueItemID(), namespace, mention, normalized, string(types.QueuePending),
		suggestedID, suggestedScore, now).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: failed to record miss: %v", storage.ErrStoreUnavailable, err)
	}
	return id, nil
}

// ListPending returns pending queue items ordered by occurrence count
// descending, ties broken by first-seen ascending.
func (s *Store) ListPending(ctx context.Context, namespace string, opts storage.PendingOptions) ([]*types.QueueItem, error) {
	opts.Normalize()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, namespace, mention, normalized, status, occurrences,
		       suggested_entity_id, suggested_score, resolved_alias_id, reject_reason,
		       first_seen, last_seen
		FROM enrichment_queue
		WHERE namespace = $1 AND status = $2 AND occurrences >= $3
		ORDER BY occurrences DESC, first_seen ASC
		LIMIT $4`,
		namespace, string(types.QueuePending), opts.MinOccurrences, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending query failed: %w", err)
	}
	defer rows.Close()

	var items []*types.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: pending query failed: %w", err)
	}
	return items, nil
}

// MarkResolved transitions an item to resolved, recording the alias it
// became. The row is kept for audit.
func (s *Store) MarkResolved(ctx context.Context, itemID, createdAliasID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_queue
		SET status = $1, resolved_alias_id = $2, last_seen = $3
		WHERE id = $4`,
		string(types.QueueResolved), createdAliasID, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark resolved: %w", err)
	}
	return requireRow(res, itemID)
}

// MarkRejected transitions an item to rejected with a reason.
func (s *Store) MarkRejected(ctx context.Context, itemID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_queue
		SET status = $1, reject_reason = $2, last_seen = $3
		WHERE id = $4`,
		string(types.QueueRejected), reason, time.Now().UTC(), itemID)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark rejected: %w", err)
	}
	return requireRow(res, itemID)
}

// GetQueueItem retrieves a queue item by ID.
func (s *Store) GetQueueItem(ctx context.Context, itemID string) (*types.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, namespace, mention, normalized, status, occurrences,
		       suggested_entity_id, suggested_score, resolved_alias_id, reject_reason,
		       first_seen, last_seen
		FROM enrichment_queue WHERE id = $1`, itemID)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return item, err
}

func scanQueueItem(row rowScanner) (*types.QueueItem, error) {
	item := &types.QueueItem{}
	var status string
	err := row.Scan(&item.ID, &item.Namespace, &item.Mention, &item.Normalized, &status,
		&item.Occurrences, &item.SuggestedEntityID, &item.SuggestedScore,
		&item.ResolvedAliasID, &item.RejectReason, &item.FirstSeen, &item.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("postgres: queue item scan failed: %w", err)
	}
	item.Status = types.QueueStatus(status)
	return item, nil
}

func requireRow(res sql.Result, itemID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: queue item %s", storage.ErrNotFound, itemID)
	}
	return nil
}
