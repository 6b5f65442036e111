// Package metamirror serves a standalone, read-only mirror of the
// CapabilityStatement endpoint over plain net/http, deliberately outside
// the Fiber app and its cors middleware. It exists for callers (static
// capability dashboards, uptime probes) that should never be able to reach
// the read/write FHIR surface even if they share an origin allow-list with
// it, so it gets its own listener, its own CORS policy, and its own
// (very short) handler chain.
package metamirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"fhirstore/internal/catalog"
)

// Server is the standalone $meta/metadata mirror listener.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds a Server bound to addr, serving GET /metadata and
// GET /$meta (an alias some FHIR clients probe instead) from cat, with
// CORS governed independently from the main API's origin allow-list.
func NewServer(addr string, cat *catalog.Catalog, allowOrigins []string, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/fhir+json")
		_ = json.NewEncoder(w).Encode(cat.CapabilityStatement())
	}
	mux.HandleFunc("/metadata", handler)
	mux.HandleFunc("/$meta", handler)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: allowOrigins,
		AllowedMethods: []string{http.MethodGet},
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           corsMiddleware.Handler(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// ListenAndServe blocks serving the mirror until the server is shut down or
// fails to bind. Intended to run in its own goroutine alongside the main
// Fiber listener.
func (s *Server) ListenAndServe() error {
	s.log.Info("metadata mirror listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the mirror listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
