// Package handlers provides the HTTP handlers and middleware for the
// Harmon REST API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jenezis/harmon/internal/export"
	"github.com/jenezis/harmon/internal/resolver"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// APIHandlers contains the HTTP handlers for the REST API.
type APIHandlers struct {
	store    storage.Store
	resolver *resolver.Resolver
	caches   *resolver.Registry
	hub      *WebSocketHub
}

// NewAPIHandlers creates a new APIHandlers instance. The hub is optional;
// when nil, no events are broadcast.
func NewAPIHandlers(store storage.Store, res *resolver.Resolver, caches *resolver.Registry, hub *WebSocketHub) *APIHandlers {
	return &APIHandlers{
		store:    store,
		resolver: res,
		caches:   caches,
		hub:      hub,
	}
}

// Resolve handles POST /api/resolve. A single mention or a batch resolves
// against the live cache; batch results preserve input order.
func (h *APIHandlers) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = "default"
	}

	mentions := req.Mentions
	if len(mentions) == 0 {
		mentions = []string{req.Mention}
	}

	results, err := h.resolver.ResolveMany(r.Context(), namespace, mentions)
	if err != nil {
		respondStorageError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ResolveResponse{Namespace: namespace, Results: results})
}

// Reload handles POST /api/reload. It snapshots the store and atomically
// swaps in a freshly built cache for the namespace; in-flight resolutions
// keep the cache they started with.
func (h *APIHandlers) Reload(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = "default"
	}

	cache, err := h.caches.Holder(namespace).Reload(r.Context(), h.store)
	if err != nil {
		respondStorageError(w, err)
		return
	}

	h.broadcast(map[string]interface{}{
		"type":      "cache_reloaded",
		"namespace": namespace,
		"aliases":   cache.Size(),
		"built_at":  cache.BuiltAt(),
	})

	respondJSON(w, http.StatusOK, ReloadResponse{
		Namespace: namespace,
		Aliases:   cache.Size(),
		Entities:  cache.EntityCount(),
		Skipped:   cache.SkippedRows(),
		BuiltAt:   cache.BuiltAt(),
	})
}

// CreateEntity handles POST /api/admin/entities.
func (h *APIHandlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if req.Namespace == "" {
		req.Namespace = "default"
	}

	id, err := h.store.CreateEntity(r.Context(), &types.CanonicalEntity{
		Name:      req.Name,
		Namespace: req.Namespace,
		Type:      req.Type,
		Source:    types.SourceManual,
	})
	if err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateEntityResponse{ID: id})
}

// AddAlias handles POST /api/admin/aliases.
func (h *APIHandlers) AddAlias(w http.ResponseWriter, r *http.Request) {
	var req AddAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	id, err := h.store.AddAlias(r.Context(), req.EntityID, req.Alias, types.ConfidenceHumanApproved)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, AddAliasResponse{ID: id})
}

// AddRelationship handles POST /api/admin/relationships.
func (h *APIHandlers) AddRelationship(w http.ResponseWriter, r *http.Request) {
	var req AddRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	id, err := h.store.AddRelationship(r.Context(), req.FromID, req.ToID, req.Type)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, AddRelationshipResponse{ID: id})
}

// ArchiveEntity handles DELETE /api/admin/entities/{id}.
func (h *APIHandlers) ArchiveEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.ArchiveEntity(r.Context(), id); err != nil {
		respondStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListQueue handles GET /api/enrichment/queue. Query parameters:
// namespace, min_occurrences, limit.
func (h *APIHandlers) ListQueue(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = "default"
	}

	items, err := h.store.ListPending(r.Context(), namespace, storage.PendingOptions{
		MinOccurrences: parseInt(r.URL.Query().Get("min_occurrences"), 0),
		Limit:          parseInt(r.URL.Query().Get("limit"), 0),
	})
	if err != nil {
		respondStorageError(w, err)
		return
	}
	if items == nil {
		items = []*types.QueueItem{}
	}
	respondJSON(w, http.StatusOK, QueueResponse{Namespace: namespace, Items: items})
}

// ResolveQueueItem handles POST /api/enrichment/queue/{id}/resolve. The
// reviewed mention becomes a human-approved alias of the chosen entity.
func (h *APIHandlers) ResolveQueueItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	var req QueueResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if req.EntityID == "" {
		respondError(w, http.StatusBadRequest, "entity_id is required", nil)
		return
	}

	item, err := h.store.GetQueueItem(r.Context(), itemID)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	if item.Status != types.QueuePending {
		respondError(w, http.StatusConflict,
			fmt.Sprintf("queue item is %s, not pending", item.Status), nil)
		return
	}

	aliasID, err := h.store.AddAlias(r.Context(), req.EntityID, item.Mention, types.ConfidenceHumanApproved)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	if err := h.store.MarkResolved(r.Context(), itemID, aliasID); err != nil {
		respondStorageError(w, err)
		return
	}

	h.broadcast(map[string]interface{}{
		"type":      "queue_item_resolved",
		"namespace": item.Namespace,
		"item_id":   itemID,
		"mention":   item.Mention,
		"entity_id": req.EntityID,
	})

	respondJSON(w, http.StatusOK, QueueActionResponse{
		ItemID: itemID, Status: string(types.QueueResolved), AliasID: aliasID,
	})
}

// RejectQueueItem handles POST /api/enrichment/queue/{id}/reject.
func (h *APIHandlers) RejectQueueItem(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	var req QueueRejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	if err := h.store.MarkRejected(r.Context(), itemID, req.Reason); err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, QueueActionResponse{
		ItemID: itemID, Status: string(types.QueueRejected),
	})
}

// ExportGraph handles GET /api/export. It snapshots the namespace and
// returns the flattened graph document.
func (h *APIHandlers) ExportGraph(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = "default"
	}

	snap, err := h.store.Snapshot(r.Context(), namespace)
	if err != nil {
		respondStorageError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, export.Graph(snap))
}

// GetStats handles GET /api/stats.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = "default"
	}

	stats, err := h.store.Stats(r.Context(), namespace)
	if err != nil {
		respondStorageError(w, err)
		return
	}

	resp := StatsResponse{
		Namespace:     namespace,
		Entities:      stats.Entities,
		Aliases:       stats.Aliases,
		Relationships: stats.Relationships,
		QueuePending:  stats.QueuePending,
	}
	if cache, err := h.caches.Holder(namespace).Load(); err == nil {
		resp.CacheAliases = cache.Size()
		resp.CacheBuiltAt = cache.BuiltAt()
	}
	respondJSON(w, http.StatusOK, resp)
}

// broadcast forwards an event to the websocket hub when one is wired.
func (h *APIHandlers) broadcast(message interface{}) {
	if h.hub != nil {
		h.hub.Broadcast(message)
	}
}

// parseInt parses an integer from a string, returning defaultValue if
// parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers already sent; nothing more to do.
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

// respondStorageError maps storage and resolver errors to HTTP statuses:
// name/alias conflicts are 409, invalid input and self-loops 400, missing
// rows 404, and an unavailable cache or store 503.
func respondStorageError(w http.ResponseWriter, err error) {
	var dup *storage.DuplicateNameError
	var ambiguous *storage.AmbiguousAliasError
	var selfLoop *storage.SelfLoopError

	switch {
	case errors.As(err, &dup):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: dup.Error(),
			Code:  "DUPLICATE_NAME",
			Details: map[string]interface{}{
				"namespace":   dup.Namespace,
				"name":        dup.Name,
				"existing_id": dup.ExistingID,
			},
		})
	case errors.As(err, &ambiguous):
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error: ambiguous.Error(),
			Code:  "AMBIGUOUS_ALIAS",
			Details: map[string]interface{}{
				"namespace": ambiguous.Namespace,
				"alias":     ambiguous.Alias,
				"owner_id":  ambiguous.OwnerID,
			},
		})
	case errors.As(err, &selfLoop):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: selfLoop.Error(),
			Code:  "SELF_LOOP",
		})
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, resolver.ErrCacheUnavailable):
		respondError(w, http.StatusServiceUnavailable, "resolution cache unavailable", err)
	case errors.Is(err, storage.ErrStoreUnavailable):
		respondError(w, http.StatusServiceUnavailable, "canonical store unavailable", err)
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}
