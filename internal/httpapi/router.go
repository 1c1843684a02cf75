// Package httpapi wires the HTTP surface of §6: subscription management
// (chi-routed, grounded on ILLUVRSE-Main's ai-infra/internal/httpserver)
// and the raw streaming endpoint (grounded on the teacher's plain
// net/http usage, since the streaming response bypasses any router
// middleware that would buffer or transform the body).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/adred-codev/eventbroker/internal/blacklist"
	"github.com/adred-codev/eventbroker/internal/subscription"
	"github.com/adred-codev/eventbroker/internal/toggles"
)

// StreamDefaults carries the per-connection limits used when an HTTP
// request does not override them, sourced from internal/config.
type StreamDefaults struct {
	BatchLimit           int
	BatchTimeout         time.Duration
	StreamLimit          int
	StreamTimeout        time.Duration
	StreamKeepAliveLimit int
}

// Server holds the collaborators the HTTP surface depends on.
type Server struct {
	subs      *subscription.Service
	toggles   toggles.Lookup
	blacklist blacklist.Checker
	sources   PartitionSourceFactory
	defaults  StreamDefaults
	logger    zerolog.Logger
}

// NewServer wires a Server over its collaborators.
func NewServer(subs *subscription.Service, toggleLookup toggles.Lookup, blacklistChecker blacklist.Checker, sources PartitionSourceFactory, defaults StreamDefaults, logger zerolog.Logger) *Server {
	return &Server{
		subs:      subs,
		toggles:   toggleLookup,
		blacklist: blacklistChecker,
		sources:   sources,
		defaults:  defaults,
		logger:    logger.With().Str("component", "httpapi").Logger(),
	}
}

// Router builds the broker's HTTP routing, following the teacher pack's
// chi + middleware.RequestID/RealIP/Recoverer/Timeout convention.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(s.requireHighLevelAPI)
		r.Use(middleware.Timeout(10 * time.Second))
		r.Post("/", s.handleCreateSubscription)
		r.Get("/", s.handleListSubscriptions)
		r.Get("/{id}", s.handleGetSubscription)
		r.Get("/{id}/stats", s.handleStats)
	})

	// The streaming route deliberately carries no middleware.Timeout: its
	// lifetime is governed entirely by the stream engine's own
	// termination conditions (§4.2), not an outer HTTP deadline.
	r.Get("/event-types/{name}/events", s.handleStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireHighLevelAPI enforces §4.5's HIGH_LEVEL_API gate: when disabled,
// every subscription endpoint responds 501.
func (s *Server) requireHighLevelAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.toggles(toggles.HighLevelAPI) {
			respondProblem(w, http.StatusNotImplemented, "Not Implemented", "the high level API is disabled")
			return
		}
		next.ServeHTTP(w, r)
	})
}
