// Package kafkasource is the concrete partition-consumer port (C3): it
// abstracts a source of wire.ConsumedEvent drained non-blockingly from an
// assigned set of partitions, backed by a distributed log (Kafka /
// Redpanda via franz-go).
package kafkasource

import (
	"context"

	"github.com/adred-codev/eventbroker/internal/wire"
)

// Port is the base capability the stream engine consumes: a short-blocking
// read that returns either an event or "none this tick", and a close that
// the engine calls exactly once on every exit path.
type Port interface {
	// ReadEvent returns the next available event, or ok=false if none is
	// currently available. It must not block longer than an internal
	// poll budget so the engine's per-partition timer checks fire at
	// roughly batchTimeout resolution.
	ReadEvent(ctx context.Context) (event wire.ConsumedEvent, ok bool, err error)
	// Close releases the underlying consumer. Idempotent.
	Close() error
}

// EventTypePartition names one partition of one event type, used by the
// reassignable variant's assignment view.
type EventTypePartition struct {
	EventType string
	Partition string
}

// ReassignablePort is the variant used by subscription-managed streams: in
// addition to the base Port, it exposes the consumer group's current
// assignment and allows the caller to reassign starting cursors, e.g.
// after a rebalance hands this client a new partition set.
type ReassignablePort interface {
	Port
	GetAssignment() []EventTypePartition
	Reassign(cursors []wire.NakadiCursor) error
}

// LagSource is the narrow capability the subscription stats projector
// (C9) needs: per-partition committed offset vs. high-watermark lag for a
// given event type, without exposing the rest of Port.
type LagSource interface {
	PartitionLag(ctx context.Context, eventType string) ([]PartitionLag, error)
}

// PartitionLag is one partition's live lag, as reported by the backing
// log for a subscription's consumer group.
type PartitionLag struct {
	Partition      string
	UnconsumedCount int64
}
