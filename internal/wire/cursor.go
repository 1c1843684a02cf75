// Package wire holds the types that cross the process boundary: the
// storage-level cursor representation used internally by the streaming
// engine, and the wire-level view clients see on the byte stream and in
// subscription JSON bodies.
package wire

// NakadiCursor is the storage-level position of an event within a
// partition of an event type. Offset is an opaque, storage-native token;
// ordering is total within a partition and undefined across partitions.
type NakadiCursor struct {
	EventType string
	Partition string
	Offset    string
}

// Cursor is the externally visible, wire-level view of a NakadiCursor:
// just the partition/offset pair, both strings. Clients treat offset as
// opaque and never compare it themselves.
type Cursor struct {
	Partition string `json:"partition"`
	Offset    string `json:"offset"`
}

// ToWire projects a NakadiCursor down to its wire representation, dropping
// the event type (the event type is implicit in the HTTP request that
// produced the stream).
func (c NakadiCursor) ToWire() Cursor {
	return Cursor{Partition: c.Partition, Offset: c.Offset}
}

// ConsumedEvent is one event drained from a partition: its already
// serialized JSON payload, plus the storage position it was read from.
// Invariant: Position.Partition equals the partition ConsumedEvent was
// drained from.
type ConsumedEvent struct {
	Event    []byte
	Position NakadiCursor
}
