// Package subscription implements the subscription store port (C7), the
// create-or-get protocol (C8), and the stats projector (C9).
package subscription

import (
	"sort"
	"time"
)

// Base is the client-supplied, unique-key-bearing part of a subscription:
// U = (OwningApplication, EventTypes, ConsumerGroup).
type Base struct {
	OwningApplication string
	EventTypes        []string
	ConsumerGroup     string
}

// CanonicalEventTypes returns EventTypes sorted lexicographically, so that
// {a,b} and {b,a} collide at the store's unique-key layer, per §6.
func (b Base) CanonicalEventTypes() []string {
	out := make([]string, len(b.EventTypes))
	copy(out, b.EventTypes)
	sort.Strings(out)
	return out
}

// Subscription is a persisted, server-side-tracked consumer position set.
type Subscription struct {
	ID                string
	OwningApplication string
	EventTypes        []string
	ConsumerGroup     string
	CreatedAt         time.Time
}

// ListFilter narrows a subscription listing.
type ListFilter struct {
	OwningApplication string
	EventTypes        []string
	Offset            int
	Limit             int
}

// StatsItem is one event type's live consumption stats within a
// subscription, as reported by C9.
type StatsItem struct {
	EventType  string
	Partitions []PartitionStats
}

// PartitionStats is one partition's lag within a subscription's event
// type.
type PartitionStats struct {
	Partition      string
	UnconsumedCount int64
}
