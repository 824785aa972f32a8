// Package server provides HTTP server initialization and lifecycle
// management for the Harmon API.
package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jenezis/harmon/internal/api/handlers"
	"github.com/jenezis/harmon/internal/config"
	"github.com/jenezis/harmon/internal/resolver"
	"github.com/jenezis/harmon/internal/storage"
)

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0) and the
// websocket hub for wiring enrichment event broadcasts. The server shuts
// down gracefully when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, store storage.Store, res *resolver.Resolver, caches *resolver.Registry) (string, *handlers.WebSocketHub) {
	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub()
	go wsHub.Run()

	api := handlers.NewAPIHandlers(store, res, caches, wsHub)
	rateLimiter := handlers.NewRateLimiter(float64(cfg.Security.RatePerSec), cfg.Security.RateBurst)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/resolve", api.Resolve)
	apiMux.HandleFunc("POST /api/reload", api.Reload)
	apiMux.HandleFunc("POST /api/admin/entities", api.CreateEntity)
	apiMux.HandleFunc("DELETE /api/admin/entities/{id}", api.ArchiveEntity)
	apiMux.HandleFunc("POST /api/admin/aliases", api.AddAlias)
	apiMux.HandleFunc("POST /api/admin/relationships", api.AddRelationship)
	apiMux.HandleFunc("GET /api/enrichment/queue", api.ListQueue)
	apiMux.HandleFunc("POST /api/enrichment/queue/{id}/resolve", api.ResolveQueueItem)
	apiMux.HandleFunc("POST /api/enrichment/queue/{id}/reject", api.RejectQueueItem)
	apiMux.HandleFunc("GET /api/export", api.ExportGraph)
	apiMux.HandleFunc("GET /api/stats", api.GetStats)

	// Health endpoint stays outside auth: used by monitoring.
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Event stream stays outside auth; origin validation handles it.
	mux.Handle("GET /api/events", wsHub)

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg.Security.APIToken))

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = handlers.SecurityHeaders(handler)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.Addr(), err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	log.Printf("server: listening on %s", actualAddr)
	return actualAddr, wsHub
}
