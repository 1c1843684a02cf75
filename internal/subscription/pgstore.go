package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pqUniqueViolation is the SQLSTATE Postgres reports for a unique index
// violation; see https://www.postgresql.org/docs/current/errcodes-appendix.html.
const pqUniqueViolation = "23505"

// PGStore is the Postgres-backed concrete implementation of Store,
// grounded on the teacher pack's database/sql + lib/pq usage
// (ai-infra/internal/store/store.go): QueryRowContext + Scan,
// errors.Is(sql.ErrNoRows) for not-found, fmt.Errorf("...: %w", err) for
// wrapping.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an already-opened *sql.DB. The caller owns the DB's
// lifecycle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Create inserts base under a unique index over
// (owning_application, event_types_key, consumer_group), where
// event_types_key is the canonicalized (sorted, comma-joined) event type
// set. A concurrent insert of the same key surfaces as
// ErrDuplicateSubscription, translated from Postgres's 23505 SQLSTATE.
func (s *PGStore) Create(ctx context.Context, base Base) (Subscription, error) {
	id := uuid.New().String()
	eventTypes := base.CanonicalEventTypes()
	key := strings.Join(eventTypes, ",")

	const query = `
		INSERT INTO subscriptions (id, owning_application, event_types, event_types_key, consumer_group, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`
	var created time.Time
	err := s.db.QueryRowContext(ctx, query, id, base.OwningApplication, pq.Array(eventTypes), key, base.ConsumerGroup).Scan(&created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return Subscription{}, ErrDuplicateSubscription
		}
		return Subscription{}, fmt.Errorf("%w: insert subscription: %v", ErrStoreUnavailable, err)
	}

	return Subscription{
		ID:                id,
		OwningApplication: base.OwningApplication,
		EventTypes:        eventTypes,
		ConsumerGroup:     base.ConsumerGroup,
		CreatedAt:         created,
	}, nil
}

// GetByID looks up a subscription by its server-generated id.
func (s *PGStore) GetByID(ctx context.Context, id string) (Subscription, error) {
	const query = `
		SELECT id, owning_application, event_types, consumer_group, created_at
		FROM subscriptions
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// GetByKey looks up a subscription by its unique key U, used by C8 to
// recover the previously-created subscription after a duplicate-key
// signal from Create.
func (s *PGStore) GetByKey(ctx context.Context, base Base) (Subscription, error) {
	key := strings.Join(base.CanonicalEventTypes(), ",")
	const query = `
		SELECT id, owning_application, event_types, consumer_group, created_at
		FROM subscriptions
		WHERE owning_application = $1 AND event_types_key = $2 AND consumer_group = $3
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, base.OwningApplication, key, base.ConsumerGroup))
}

func (s *PGStore) scanOne(row *sql.Row) (Subscription, error) {
	var sub Subscription
	var eventTypes pq.StringArray
	if err := row.Scan(&sub.ID, &sub.OwningApplication, &eventTypes, &sub.ConsumerGroup, &sub.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("%w: scan subscription: %v", ErrStoreUnavailable, err)
	}
	sub.EventTypes = []string(eventTypes)
	return sub, nil
}

// List returns subscriptions matching filter, ordered by creation time,
// already paginated by filter.Offset/filter.Limit.
func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]Subscription, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, owning_application, event_types, consumer_group, created_at FROM subscriptions WHERE 1=1`)
	args := []interface{}{}
	argN := 0
	nextArg := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if filter.OwningApplication != "" {
		query.WriteString(fmt.Sprintf(" AND owning_application = %s", nextArg(filter.OwningApplication)))
	}
	if len(filter.EventTypes) > 0 {
		query.WriteString(fmt.Sprintf(" AND event_types && %s", nextArg(pq.Array(filter.EventTypes))))
	}
	query.WriteString(" ORDER BY created_at ASC")
	query.WriteString(fmt.Sprintf(" LIMIT %s", nextArg(filter.Limit)))
	query.WriteString(fmt.Sprintf(" OFFSET %s", nextArg(filter.Offset)))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list subscriptions: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var eventTypes pq.StringArray
		if err := rows.Scan(&sub.ID, &sub.OwningApplication, &eventTypes, &sub.ConsumerGroup, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan subscription row: %v", ErrStoreUnavailable, err)
		}
		sub.EventTypes = []string(eventTypes)
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate subscription rows: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}
