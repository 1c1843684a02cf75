package subscription

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/adred-codev/eventbroker/internal/streaming/kafkasource"
	"github.com/adred-codev/eventbroker/internal/toggles"
)

// ErrOwnerUnknown is returned when owning-application existence checking
// is enabled and the application service reports the owner unknown.
var ErrOwnerUnknown = errors.New("subscription: owning_application doesn't exist")

// ErrScopeMismatch is returned when the client principal lacks the read
// scopes required by one of the requested event types.
var ErrScopeMismatch = errors.New("subscription: scope mismatch")

// UnknownEventTypesError names the requested event types that do not
// exist, single-quoted and comma-separated in lexicographic order per the
// spec's recommendation for deterministic tests.
type UnknownEventTypesError struct {
	Names []string
}

func (e *UnknownEventTypesError) Error() string {
	quoted := make([]string, len(e.Names))
	for i, n := range e.Names {
		quoted[i] = "'" + n + "'"
	}
	return fmt.Sprintf("Failed to create subscription, event type(s) not found: %s", strings.Join(quoted, ","))
}

// EventTypeRepository resolves event-type existence and read scopes; an
// external collaborator per §1 (out of scope for this design).
type EventTypeRepository interface {
	Exists(ctx context.Context, name string) (bool, error)
	ReadScopes(ctx context.Context, name string) ([]string, error)
}

// ApplicationChecker answers whether an owning_application is known to the
// platform; an external collaborator.
type ApplicationChecker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// ScopeChecker validates a client principal against a set of required
// read scopes; an external collaborator. Implementations return
// ErrScopeMismatch (or a wrapping of it) on failure.
type ScopeChecker interface {
	Check(ctx context.Context, principal string, scopes []string) error
}

// Principal identifies the client making the request, passed through to
// ScopeChecker.
type Principal struct {
	Name string
}

// Service implements the subscription create-or-get protocol (C8), list
// (§4.4), and stats (C9).
type Service struct {
	store      Store
	eventTypes EventTypeRepository
	apps       ApplicationChecker
	scopes     ScopeChecker
	lag        kafkasource.LagSource
	logger     zerolog.Logger
	toggles    toggles.Lookup
}

// NewService wires the create-or-get protocol's collaborators. toggles is
// consulted per-call (CHECK_OWNING_APPLICATION, §4.5) rather than baked in
// at construction time, the same way internal/httpapi reads HIGH_LEVEL_API
// per request.
func NewService(store Store, eventTypes EventTypeRepository, apps ApplicationChecker, scopes ScopeChecker, lag kafkasource.LagSource, logger zerolog.Logger, toggleLookup toggles.Lookup) *Service {
	return &Service{store: store, eventTypes: eventTypes, apps: apps, scopes: scopes, lag: lag, logger: logger.With().Str("component", "subscription-service").Logger(), toggles: toggleLookup}
}

// CreateResult reports whether CreateOrGet created a new subscription
// (client should see 201) or recovered an existing one via the idempotent
// collision path (client should see 200); both cases carry the same
// Location-bearing Subscription.
type CreateResult struct {
	Subscription Subscription
	Created      bool
}

// CreateOrGet implements §4.3's algorithm end to end. On success, callers
// map Created to 201 vs 200 and always set Location (and, on 201,
// Content-Location) to "/subscriptions/{id}".
func (s *Service) CreateOrGet(ctx context.Context, base Base, principal Principal) (CreateResult, error) {
	if s.toggles(toggles.CheckOwningApplication) {
		known, err := s.apps.Exists(ctx, base.OwningApplication)
		if err != nil {
			return CreateResult{}, fmt.Errorf("%w: check owning application: %v", ErrStoreUnavailable, err)
		}
		if !known {
			return CreateResult{}, ErrOwnerUnknown
		}
	}

	var missing []string
	var allScopes []string
	for _, et := range base.EventTypes {
		exists, err := s.eventTypes.Exists(ctx, et)
		if err != nil {
			return CreateResult{}, fmt.Errorf("%w: check event type %q: %v", ErrStoreUnavailable, et, err)
		}
		if !exists {
			missing = append(missing, et)
			continue
		}
		scopes, err := s.eventTypes.ReadScopes(ctx, et)
		if err != nil {
			return CreateResult{}, fmt.Errorf("%w: read scopes for %q: %v", ErrStoreUnavailable, et, err)
		}
		allScopes = append(allScopes, scopes...)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return CreateResult{}, &UnknownEventTypesError{Names: missing}
	}

	if err := s.scopes.Check(ctx, principal.Name, allScopes); err != nil {
		return CreateResult{}, fmt.Errorf("%w: %v", ErrScopeMismatch, err)
	}

	created, err := s.store.Create(ctx, base)
	if err == nil {
		return CreateResult{Subscription: created, Created: true}, nil
	}
	if !errors.Is(err, ErrDuplicateSubscription) {
		return CreateResult{}, err
	}

	existing, lookupErr := s.store.GetByKey(ctx, base)
	if lookupErr == nil {
		return CreateResult{Subscription: existing, Created: false}, nil
	}
	if errors.Is(lookupErr, ErrNotFound) {
		// A true race lost to a concurrent delete: surface the original
		// duplication signal rather than the lookup's not-found.
		return CreateResult{}, err
	}
	s.logger.Error().Err(lookupErr).Msg("lookup after duplicate-key signal failed")
	return CreateResult{}, fmt.Errorf("%w: recover subscription after duplicate key: %v", ErrStoreUnavailable, lookupErr)
}

// List returns a page of subscriptions matching filter, after validating
// its pagination parameters.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Subscription, error) {
	if err := ValidateOffsetLimit(filter.Limit, filter.Offset); err != nil {
		return nil, err
	}
	return s.store.List(ctx, filter)
}

// Get looks up a subscription by id, used by the detail endpoint.
func (s *Service) Get(ctx context.Context, id string) (Subscription, error) {
	return s.store.GetByID(ctx, id)
}

// Stats composes live per-event-type lag for a subscription (C9): fetches
// the subscription, then asks the lag source for each event type's
// per-partition unconsumed count.
func (s *Service) Stats(ctx context.Context, id string) ([]StatsItem, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]StatsItem, 0, len(sub.EventTypes))
	for _, et := range sub.EventTypes {
		lags, err := s.lag.PartitionLag(ctx, et)
		if err != nil {
			return nil, fmt.Errorf("%w: partition lag for %q: %v", ErrStoreUnavailable, et, err)
		}
		partitions := make([]PartitionStats, 0, len(lags))
		for _, l := range lags {
			partitions = append(partitions, PartitionStats{Partition: l.Partition, UnconsumedCount: l.UnconsumedCount})
		}
		items = append(items, StatsItem{EventType: et, Partitions: partitions})
	}
	return items, nil
}
