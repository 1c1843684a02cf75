package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adred-codev/eventbroker/internal/subscription"
	"github.com/adred-codev/eventbroker/internal/telemetry"
)

// createSubscriptionRequest is the wire shape of a POST /subscriptions
// body.
type createSubscriptionRequest struct {
	OwningApplication string   `json:"owning_application"`
	EventTypes        []string `json:"event_types"`
	ConsumerGroup     string   `json:"consumer_group"`
}

// subscriptionResponse is the wire shape of a persisted subscription.
type subscriptionResponse struct {
	ID                string   `json:"id"`
	OwningApplication string   `json:"owning_application"`
	EventTypes        []string `json:"event_types"`
	ConsumerGroup     string   `json:"consumer_group"`
	CreatedAt         string   `json:"created_at"`
}

func toSubscriptionResponse(sub subscription.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                sub.ID,
		OwningApplication: sub.OwningApplication,
		EventTypes:        sub.EventTypes,
		ConsumerGroup:     sub.ConsumerGroup,
		CreatedAt:         sub.CreatedAt.Format(`2006-01-02T15:04:05.000Z07:00`),
	}
}

// principalFromRequest extracts the calling client's identity. Real
// authentication is an external concern; this broker takes the principal
// name from a header set by whatever sits in front of it.
func principalFromRequest(r *http.Request) subscription.Principal {
	return subscription.Principal{Name: r.Header.Get("X-Consumer-App")}
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { telemetry.SubscriptionCreateDuration.Observe(time.Since(start).Seconds()) }()

	var req createSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondProblem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}

	base := subscription.Base{
		OwningApplication: req.OwningApplication,
		EventTypes:        req.EventTypes,
		ConsumerGroup:     req.ConsumerGroup,
	}

	result, err := s.subs.CreateOrGet(r.Context(), base, principalFromRequest(r))
	if err != nil {
		s.handleCreateError(w, err)
		return
	}

	outcome := "created"
	if !result.Created {
		outcome = "idempotent_replay"
	}
	telemetry.SubscriptionCreateTotal.WithLabelValues(outcome).Inc()

	location := "/subscriptions/" + result.Subscription.ID
	w.Header().Set("Location", location)
	status := http.StatusOK
	if result.Created {
		w.Header().Set("Content-Location", location)
		status = http.StatusCreated
	}
	respondJSON(w, status, toSubscriptionResponse(result.Subscription))
}

func (s *Server) handleCreateError(w http.ResponseWriter, err error) {
	telemetry.SubscriptionCreateTotal.WithLabelValues("error").Inc()

	var unknown *subscription.UnknownEventTypesError
	switch {
	case errors.As(err, &unknown):
		respondProblem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	case errors.Is(err, subscription.ErrOwnerUnknown):
		respondProblem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	case errors.Is(err, subscription.ErrScopeMismatch):
		respondProblem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, subscription.ErrStoreUnavailable):
		respondProblem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	default:
		respondProblem(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	telemetry.SubscriptionListTotal.Inc()

	q := r.URL.Query()
	limit := queryInt(q, "limit", 20)
	offset := queryInt(q, "offset", 0)
	owningApp := q.Get("owning_application")
	eventTypes := q["event_type"]

	subs, err := s.subs.List(r.Context(), subscription.ListFilter{
		OwningApplication: owningApp,
		EventTypes:        eventTypes,
		Offset:            offset,
		Limit:             limit,
	})
	if err != nil {
		if errors.Is(err, subscription.ErrBadPagination) {
			respondProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		respondProblem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
		return
	}

	items := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		items = append(items, toSubscriptionResponse(sub))
	}
	links := subscription.BuildLinks("/subscriptions", owningApp, eventTypes, offset, limit, len(subs))
	respondJSON(w, http.StatusOK, struct {
		Items []subscriptionResponse `json:"items"`
		Links subscription.Links     `json:"_links"`
	}{Items: items, Links: links})
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := s.subs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			respondProblem(w, http.StatusNotFound, "Not Found", "subscription not found")
			return
		}
		respondProblem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	telemetry.SubscriptionStatsTotal.Inc()

	id := chi.URLParam(r, "id")
	items, err := s.subs.Stats(r.Context(), id)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			respondProblem(w, http.StatusNotFound, "Not Found", "subscription not found")
			return
		}
		respondProblem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, struct {
		Items []subscription.StatsItem `json:"items"`
	}{Items: items})
}

func queryInt(q map[string][]string, name string, def int) int {
	vals, ok := q[name]
	if !ok || len(vals) == 0 || vals[0] == "" {
		return def
	}
	v, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return v
}
