package subscription

import (
	"context"
	"errors"
)

// ErrDuplicateSubscription is the store's signal that a subscription with
// the same key U = (owningApplication, eventTypes, consumerGroup) already
// exists. It is an internal signal: C8 translates it into an idempotent
// 200 OK, and returns it to the caller only when the follow-up lookup by
// key finds no subscription.
var ErrDuplicateSubscription = errors.New("subscription: duplicate key")

// ErrNotFound is returned by GetByID/GetByKey when no matching row exists.
var ErrNotFound = errors.New("subscription: not found")

// ErrStoreUnavailable wraps any failure that indicates the backing store
// itself is unreachable, as opposed to an ordinary not-found or
// duplicate-key outcome.
var ErrStoreUnavailable = errors.New("subscription: store unavailable")

// Store is the subscription store port (C7): persistence with unique-key
// semantics over U.
type Store interface {
	// Create persists base and returns the new Subscription. Returns
	// ErrDuplicateSubscription if a subscription with the same U already
	// exists; no partial subscription is visible via the API in that
	// case.
	Create(ctx context.Context, base Base) (Subscription, error)
	// GetByID looks up a subscription by its server-generated id.
	GetByID(ctx context.Context, id string) (Subscription, error)
	// GetByKey looks up a subscription by its unique key U.
	GetByKey(ctx context.Context, base Base) (Subscription, error)
	// List returns subscriptions matching filter, already paginated by
	// filter.Offset/filter.Limit.
	List(ctx context.Context, filter ListFilter) ([]Subscription, error)
}
