package subscription_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/eventbroker/internal/streaming/kafkasource"
	"github.com/adred-codev/eventbroker/internal/subscription"
	"github.com/adred-codev/eventbroker/internal/toggles"
)

// memStore is an in-memory Store fake that reproduces the store's
// unique-key + duplicate-signal contract without a database, for testing
// the create-or-get orchestration in isolation from SQL.
type memStore struct {
	mu   sync.Mutex
	byID map[string]subscription.Subscription
	byKey map[string]subscription.Subscription
	seq  int
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]subscription.Subscription{}, byKey: map[string]subscription.Subscription{}}
}

func keyOf(b subscription.Base) string {
	s := ""
	for _, et := range b.CanonicalEventTypes() {
		s += et + ","
	}
	return b.OwningApplication + "|" + s + "|" + b.ConsumerGroup
}

func (m *memStore) Create(ctx context.Context, base subscription.Base) (subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(base)
	if _, exists := m.byKey[k]; exists {
		return subscription.Subscription{}, subscription.ErrDuplicateSubscription
	}
	m.seq++
	sub := subscription.Subscription{ID: "sub-" + itoa(m.seq), OwningApplication: base.OwningApplication, EventTypes: base.CanonicalEventTypes(), ConsumerGroup: base.ConsumerGroup}
	m.byKey[k] = sub
	m.byID[sub.ID] = sub
	return sub, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byID[id]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

func (m *memStore) GetByKey(ctx context.Context, base subscription.Base) (subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byKey[keyOf(base)]
	if !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return sub, nil
}

func (m *memStore) List(ctx context.Context, filter subscription.ListFilter) ([]subscription.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []subscription.Subscription
	for _, sub := range m.byID {
		out = append(out, sub)
	}
	return out, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

type fakeEventTypes struct {
	known map[string][]string // name -> read scopes
}

func (f fakeEventTypes) Exists(ctx context.Context, name string) (bool, error) {
	_, ok := f.known[name]
	return ok, nil
}

func (f fakeEventTypes) ReadScopes(ctx context.Context, name string) ([]string, error) {
	return f.known[name], nil
}

type alwaysKnownApps struct{}

func (alwaysKnownApps) Exists(ctx context.Context, name string) (bool, error) { return true, nil }

type unknownApps struct{}

func (unknownApps) Exists(ctx context.Context, name string) (bool, error) { return false, nil }

type alwaysAllowedScopes struct{}

func (alwaysAllowedScopes) Check(ctx context.Context, principal string, scopes []string) error {
	return nil
}

type noopLag struct{}

func (noopLag) PartitionLag(ctx context.Context, eventType string) ([]kafkasource.PartitionLag, error) {
	return nil, nil
}

func newTestService(store subscription.Store, events fakeEventTypes) *subscription.Service {
	return subscription.NewService(store, events, alwaysKnownApps{}, alwaysAllowedScopes{}, noopLag{}, zerolog.Nop(), toggles.Static(nil))
}

func TestCreateOrGet_FirstCreateIs201(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, fakeEventTypes{known: map[string][]string{"orders": nil}})

	base := subscription.Base{OwningApplication: "acme", EventTypes: []string{"orders"}, ConsumerGroup: "team-a"}
	result, err := svc.CreateOrGet(context.Background(), base, subscription.Principal{Name: "acme"})
	require.NoError(t, err)
	require.True(t, result.Created)
	require.NotEmpty(t, result.Subscription.ID)
}

func TestCreateOrGet_SecondRequestIsIdempotent200(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, fakeEventTypes{known: map[string][]string{"orders": nil}})

	base := subscription.Base{OwningApplication: "acme", EventTypes: []string{"orders"}, ConsumerGroup: "team-a"}
	first, err := svc.CreateOrGet(context.Background(), base, subscription.Principal{Name: "acme"})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := svc.CreateOrGet(context.Background(), base, subscription.Principal{Name: "acme"})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Subscription.ID, second.Subscription.ID)
}

func TestCreateOrGet_EventTypeSetOrderDoesNotMatter(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, fakeEventTypes{known: map[string][]string{"a": nil, "b": nil}})

	first, err := svc.CreateOrGet(context.Background(), subscription.Base{OwningApplication: "acme", EventTypes: []string{"a", "b"}, ConsumerGroup: "g"}, subscription.Principal{Name: "acme"})
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := svc.CreateOrGet(context.Background(), subscription.Base{OwningApplication: "acme", EventTypes: []string{"b", "a"}, ConsumerGroup: "g"}, subscription.Principal{Name: "acme"})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Subscription.ID, second.Subscription.ID)
}

func TestCreateOrGet_MissingEventTypes(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, fakeEventTypes{known: map[string][]string{"x": nil}})

	_, err := svc.CreateOrGet(context.Background(), subscription.Base{OwningApplication: "acme", EventTypes: []string{"x", "y"}, ConsumerGroup: "g"}, subscription.Principal{Name: "acme"})
	require.Error(t, err)
	var unknownErr *subscription.UnknownEventTypesError
	require.ErrorAs(t, err, &unknownErr)
	require.Contains(t, unknownErr.Error(), "'y'")
	require.NotContains(t, unknownErr.Error(), "'x'")
}

func TestCreateOrGet_CheckOwningApplicationReadPerRequest(t *testing.T) {
	base := subscription.Base{OwningApplication: "ghost", EventTypes: []string{"orders"}, ConsumerGroup: "team-a"}
	events := fakeEventTypes{known: map[string][]string{"orders": nil}}

	checkOwner := false
	lookup := func(name string) bool { return name == toggles.CheckOwningApplication && checkOwner }
	svc := subscription.NewService(newMemStore(), events, unknownApps{}, alwaysAllowedScopes{}, noopLag{}, zerolog.Nop(), lookup)

	_, err := svc.CreateOrGet(context.Background(), base, subscription.Principal{Name: "ghost"})
	require.NoError(t, err, "toggle off: owning-application existence must not be consulted")

	// Flip the toggle on the same service: the next call must see it.
	checkOwner = true
	_, err = svc.CreateOrGet(context.Background(), base, subscription.Principal{Name: "ghost"})
	require.ErrorIs(t, err, subscription.ErrOwnerUnknown)
}

func TestListValidation_BadLimit(t *testing.T) {
	err := subscription.ValidateOffsetLimit(0, 0)
	require.ErrorContains(t, err, "'limit' parameter should have value from 1 to 1000")
}

func TestListValidation_BadOffset(t *testing.T) {
	err := subscription.ValidateOffsetLimit(20, -1)
	require.ErrorContains(t, err, "'offset' parameter can't be lower than 0")
}
