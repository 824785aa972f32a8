package handlers

import (
	"time"

	"github.com/jenezis/harmon/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ResolveRequest is the request format for POST /api/resolve. Either a
// single mention or a batch may be supplied; when both are present the
// batch wins.
type ResolveRequest struct {
	Namespace string   `json:"namespace"`
	Mention   string   `json:"mention,omitempty"`
	Mentions  []string `json:"mentions,omitempty"`
}

// ResolveResponse is the response format for POST /api/resolve.
type ResolveResponse struct {
	Namespace string                    `json:"namespace"`
	Results   []*types.ResolutionResult `json:"results"`
}

// CreateEntityRequest is the request format for POST /api/admin/entities.
type CreateEntityRequest struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
}

// CreateEntityResponse acknowledges an entity creation.
type CreateEntityResponse struct {
	ID string `json:"id"`
}

// AddAliasRequest is the request format for POST /api/admin/aliases.
type AddAliasRequest struct {
	EntityID string `json:"entity_id"`
	Alias    string `json:"alias"`
}

// AddAliasResponse acknowledges an alias registration.
type AddAliasResponse struct {
	ID string `json:"id"`
}

// AddRelationshipRequest is the request format for POST /api/admin/relationships.
type AddRelationshipRequest struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Type   string `json:"type"`
}

// AddRelationshipResponse acknowledges a relationship creation.
type AddRelationshipResponse struct {
	ID string `json:"id"`
}

// ReloadResponse is the response format for POST /api/reload.
type ReloadResponse struct {
	Namespace string    `json:"namespace"`
	Aliases   int       `json:"aliases"`
	Entities  int       `json:"entities"`
	Skipped   int       `json:"skipped_rows"`
	BuiltAt   time.Time `json:"built_at"`
}

// QueueResponse is the response format for GET /api/enrichment/queue.
type QueueResponse struct {
	Namespace string             `json:"namespace"`
	Items     []*types.QueueItem `json:"items"`
}

// QueueResolveRequest promotes a queue item to an alias of entity_id.
type QueueResolveRequest struct {
	EntityID string `json:"entity_id"`
}

// QueueRejectRequest rejects a queue item with a reason.
type QueueRejectRequest struct {
	Reason string `json:"reason"`
}

// QueueActionResponse acknowledges a queue review action.
type QueueActionResponse struct {
	ItemID  string `json:"item_id"`
	Status  string `json:"status"`
	AliasID string `json:"alias_id,omitempty"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Namespace     string    `json:"namespace"`
	Entities      int       `json:"entities"`
	Aliases       int       `json:"aliases"`
	Relationships int       `json:"relationships"`
	QueuePending  int       `json:"queue_pending"`
	CacheAliases  int       `json:"cache_aliases"`
	CacheBuiltAt  time.Time `json:"cache_built_at,omitempty"`
}
