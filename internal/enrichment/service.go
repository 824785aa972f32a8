// Package enrichment runs the background promotion loop over the
// enrichment queue. A ticker-driven sweep pulls pending items, re-scores
// them against the live resolution cache, and promotes high-confidence
// matches into aliases. Everything else stays pending for human review.
package enrichment

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/jenezis/harmon/internal/resolver"
	"github.com/jenezis/harmon/internal/storage"
	"github.com/jenezis/harmon/pkg/types"
)

// Options configures the enrichment service.
type Options struct {
	// Interval is the time between queue sweeps (default: 60s).
	Interval time.Duration

	// MinOccurrences filters out one-off misses (default: 2).
	MinOccurrences int

	// AutoApproveScore is the fuzzy score at or above which an alias is
	// promoted without human review (default: 0.92).
	AutoApproveScore float64

	// BatchSize caps items pulled per namespace per sweep (default: 25).
	BatchSize int

	// Workers is the number of concurrent item processors (default: 2).
	Workers int
}

// Normalize applies defaults for zero-valued options.
func (o *Options) Normalize() {
	if o.Interval <= 0 {
		o.Interval = 60 * time.Second
	}
	if o.MinOccurrences <= 0 {
		o.MinOccurrences = 2
	}
	if o.AutoApproveScore <= 0 {
		o.AutoApproveScore = 0.92
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 25
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
}

// Event describes a promotion outcome for observers (websocket hub, logs).
type Event struct {
	Namespace string    `json:"namespace"`
	ItemID    string    `json:"item_id"`
	Mention   string    `json:"mention"`
	EntityID  string    `json:"entity_id,omitempty"`
	AliasID   string    `json:"alias_id,omitempty"`
	Score     float64   `json:"score"`
	Outcome   string    `json:"outcome"` // promoted, rejected, skipped
	At        time.Time `json:"at"`
}

// Service is the background enrichment worker.
type Service struct {
	store    storage.Store
	caches   *resolver.Registry
	opts     Options
	jobs     chan *types.QueueItem
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	OnEvent  func(Event)          // optional observer, called after each item
	OnChange func(namespace string) // optional, called after each promoted alias
}

// New creates an enrichment service reading pending items from store and
// scoring them against the caches in registry.
func New(store storage.Store, caches *resolver.Registry, opts Options) *Service {
	opts.Normalize()
	return &Service{
		store:  store,
		caches: caches,
		opts:   opts,
		jobs:   make(chan *types.QueueItem, opts.BatchSize),
	}
}

// Start launches the sweep loop and worker pool. Call Stop to shut down.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	log.Printf("enrichment: service started (interval=%s workers=%d)", s.opts.Interval, s.opts.Workers)
}

// Stop cancels the loop and waits for in-flight items to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	log.Printf("enrichment: service stopped")
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.jobs)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep pulls one batch per namespace and feeds items to the workers.
func (s *Service) sweep(ctx context.Context) {
	for _, namespace := range s.caches.Namespaces() {
		items, err := s.store.ListPending(ctx, namespace, storage.PendingOptions{
			MinOccurrences: s.opts.MinOccurrences,
			Limit:          s.opts.BatchSize,
		})
		if err != nil {
			log.Printf("enrichment: pending list failed for %s: %v", namespace, err)
			continue
		}
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case s.jobs <- item:
			}
		}
	}
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for item := range s.jobs {
		s.processItem(item)
	}
	log.Printf("enrichment: worker %d stopped", id)
}

// processItem re-scores one queue item against the live cache and promotes
// it when the best fuzzy candidate clears the auto-approve threshold.
// Database writes use a background context so an in-flight promotion is
// not torn by shutdown.
func (s *Service) processItem(item *types.QueueItem) {
	cache, err := s.caches.Holder(item.Namespace).Load()
	if err != nil {
		log.Printf("enrichment: cache unavailable for %s, leaving %s pending: %v", item.Namespace, item.ID, err)
		return
	}

	// An alias may have appeared since the miss was recorded (manual
	// promotion, import). Resolve exactly first.
	if entity, ok := cache.Lookup(item.Normalized); ok {
		s.promote(item, entity.ID, 1.0)
		return
	}

	suggestions := cache.FuzzyCandidates(item.Normalized, 1, s.opts.AutoApproveScore)
	if len(suggestions) == 0 {
		s.emit(Event{Namespace: item.Namespace, ItemID: item.ID, Mention: item.Mention,
			Outcome: "skipped", At: time.Now().UTC()})
		return
	}
	s.promote(item, suggestions[0].EntityID, suggestions[0].Score)
}

// promote adds the queued mention as a fuzzy-approved alias of entityID
// and marks the item resolved. An alias conflict rejects the item instead.
func (s *Service) promote(item *types.QueueItem, entityID string, score float64) {
	dbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliasID, err := s.store.AddAlias(dbCtx, entityID, item.Mention, types.ConfidenceFuzzyApproved)
	if err != nil {
		var ambiguous *storage.AmbiguousAliasError
		if errors.As(err, &ambiguous) {
			// The alias got claimed by another entity since the last
			// cache build. Reject with the conflict recorded.
			if rejErr := s.store.MarkRejected(dbCtx, item.ID, ambiguous.Error()); rejErr != nil {
				log.Printf("enrichment: reject of %s failed: %v", item.ID, rejErr)
				return
			}
			s.emit(Event{Namespace: item.Namespace, ItemID: item.ID, Mention: item.Mention,
				EntityID: ambiguous.OwnerID, Score: score, Outcome: "rejected", At: time.Now().UTC()})
			return
		}
		log.Printf("enrichment: alias promotion of %s failed: %v", item.ID, err)
		return
	}

	if err := s.store.MarkResolved(dbCtx, item.ID, aliasID); err != nil {
		log.Printf("enrichment: mark resolved of %s failed: %v", item.ID, err)
		return
	}

	log.Printf("enrichment: promoted %q -> entity %s (score %.2f)", item.Mention, entityID, score)
	s.emit(Event{Namespace: item.Namespace, ItemID: item.ID, Mention: item.Mention,
		EntityID: entityID, AliasID: aliasID, Score: score, Outcome: "promoted", At: time.Now().UTC()})
	if s.OnChange != nil {
		s.OnChange(item.Namespace)
	}
}

func (s *Service) emit(ev Event) {
	if s.OnEvent != nil {
		s.OnEvent(ev)
	}
}
