package streaming

import (
	"fmt"
	"time"

	"github.com/adred-codev/eventbroker/internal/wire"
)

// Config is the immutable set of parameters for a single streaming
// connection. It is constructed once at request start and never mutated;
// the engine owns no reference back to the HTTP request that produced it.
type Config struct {
	EventTypeName  string
	ConsumingAppID string

	// Cursors are the starting positions, one per assigned partition.
	Cursors []wire.NakadiCursor

	// BatchLimit is the maximum number of events per emitted record.
	BatchLimit int
	// BatchTimeout is the per-partition heartbeat interval. Zero is
	// rejected at this layer; the caller must supply a positive value.
	BatchTimeout time.Duration

	// StreamLimit is the total event budget across all partitions for
	// this connection. Zero means unlimited.
	StreamLimit int
	// StreamTimeout bounds the connection's wall-clock lifetime. Zero
	// means unlimited.
	StreamTimeout time.Duration
	// StreamKeepAliveLimit is the number of consecutive empty flushes
	// after which the engine terminates the stream, once every partition
	// has reached it; a single idle partition alone does not end the
	// stream. Zero means unlimited.
	StreamKeepAliveLimit int
}

// Validate enforces the invariants §3/§9 of the streaming spec require of
// a StreamConfig before it can drive an Engine.
func (c Config) Validate() error {
	if c.EventTypeName == "" {
		return fmt.Errorf("streaming: event type name is required")
	}
	if c.ConsumingAppID == "" {
		return fmt.Errorf("streaming: consuming app id is required")
	}
	if len(c.Cursors) == 0 {
		return fmt.Errorf("streaming: at least one cursor is required")
	}
	if c.BatchLimit <= 0 {
		return fmt.Errorf("streaming: batch limit must be > 0")
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("streaming: batch timeout must be > 0")
	}
	if c.StreamLimit < 0 {
		return fmt.Errorf("streaming: stream limit must be >= 0")
	}
	if c.StreamTimeout < 0 {
		return fmt.Errorf("streaming: stream timeout must be >= 0")
	}
	if c.StreamKeepAliveLimit < 0 {
		return fmt.Errorf("streaming: stream keep-alive limit must be >= 0")
	}
	return nil
}
