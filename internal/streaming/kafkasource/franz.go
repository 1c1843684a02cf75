package kafkasource

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/adred-codev/eventbroker/internal/wire"
)

// pollBudget bounds how long a single ReadEvent tick may block waiting on
// the broker, so the engine's per-partition batchTimeout checks still fire
// at roughly the configured resolution even when the topic is idle.
const pollBudget = 200 * time.Millisecond

// Config configures a franz-go backed partition consumer, grounded on the
// teacher's kafka.ConsumerConfig shape.
type Config struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	Cursors       []wire.NakadiCursor
	Logger        zerolog.Logger
}

// Consumer adapts a franz-go client to the Port / ReassignablePort
// contracts. One Consumer is owned exclusively by one
// stream engine for the lifetime of a connection.
type Consumer struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger

	mu         sync.Mutex
	pending    []*kgo.Record
	assignment []EventTypePartition
}

// NewConsumer builds a Consumer positioned at the given starting cursors.
// Offsets are opaque strings from the caller's point of view; here each
// cursor's partition and offset are parsed as decimal integers by
// parsePartition and parseOffset.
func NewConsumer(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkasource: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafkasource: topic is required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("kafkasource: consumer group is required")
	}

	c := &Consumer{topic: cfg.Topic, logger: cfg.Logger.With().Str("component", "kafkasource").Logger()}

	offsets := map[string]map[int32]kgo.Offset{cfg.Topic: {}}
	for _, cur := range cfg.Cursors {
		partition, err := parsePartition(cur.Partition)
		if err != nil {
			return nil, err
		}
		offset, err := parseOffset(cur.Offset)
		if err != nil {
			return nil, err
		}
		offsets[cfg.Topic][partition] = kgo.NewOffset().At(offset)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumePartitions(offsets),
		kgo.FetchMaxWait(pollBudget),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			c.recordAssignment(assigned)
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			c.logger.Info().Interface("partitions", revoked).Msg("partitions revoked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkasource: create client: %w", err)
	}
	c.client = client
	return c, nil
}

func (c *Consumer) recordAssignment(assigned map[string][]int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assignment = c.assignment[:0]
	for topic, partitions := range assigned {
		for _, p := range partitions {
			c.assignment = append(c.assignment, EventTypePartition{EventType: topic, Partition: fmt.Sprintf("%d", p)})
		}
	}
}

// ReadEvent returns the next buffered record, polling the broker for more
// if the local buffer is empty. A tick that finds nothing within
// pollBudget returns ok=false rather than blocking the engine's flush
// pass indefinitely.
func (c *Consumer) ReadEvent(ctx context.Context) (wire.ConsumedEvent, bool, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		rec := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		return toConsumedEvent(rec), true, nil
	}
	c.mu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, pollBudget)
	defer cancel()

	fetches := c.client.PollFetches(pollCtx)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, fe := range errs {
			// An expired poll budget is an idle tick, not a fetch failure.
			if errors.Is(fe.Err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}
			if fe.Err != nil {
				return wire.ConsumedEvent{}, false, fmt.Errorf("kafkasource: fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
			}
		}
	}

	var records []*kgo.Record
	fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	if len(records) == 0 {
		return wire.ConsumedEvent{}, false, nil
	}

	c.mu.Lock()
	c.pending = append(c.pending, records[1:]...)
	c.mu.Unlock()

	return toConsumedEvent(records[0]), true, nil
}

func toConsumedEvent(rec *kgo.Record) wire.ConsumedEvent {
	return wire.ConsumedEvent{
		Event: rec.Value,
		Position: wire.NakadiCursor{
			EventType: rec.Topic,
			Partition: fmt.Sprintf("%d", rec.Partition),
			Offset:    fmt.Sprintf("%d", rec.Offset),
		},
	}
}

// Close releases the underlying franz-go client. Idempotent: franz-go's
// own Close tolerates repeated calls.
func (c *Consumer) Close() error {
	c.client.Close()
	return nil
}

// GetAssignment reports the consumer group's current partition assignment
// for the reassignable variant used by subscription-managed streams.
func (c *Consumer) GetAssignment() []EventTypePartition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventTypePartition, len(c.assignment))
	copy(out, c.assignment)
	return out
}

// Reassign moves consumption to a new set of starting cursors, used after
// a rebalance hands this client a different partition set.
func (c *Consumer) Reassign(cursors []wire.NakadiCursor) error {
	offsets := map[string]map[int32]kgo.Offset{c.topic: {}}
	for _, cur := range cursors {
		partition, err := parsePartition(cur.Partition)
		if err != nil {
			return err
		}
		offset, err := parseOffset(cur.Offset)
		if err != nil {
			return err
		}
		offsets[c.topic][partition] = kgo.NewOffset().At(offset)
	}
	c.client.AddConsumePartitions(offsets)
	return nil
}

func parsePartition(s string) (int32, error) {
	var p int32
	if _, err := fmt.Sscanf(s, "%d", &p); err != nil {
		return 0, fmt.Errorf("kafkasource: invalid partition %q: %w", s, err)
	}
	return p, nil
}

func parseOffset(s string) (int64, error) {
	var o int64
	if _, err := fmt.Sscanf(s, "%d", &o); err != nil {
		return 0, fmt.Errorf("kafkasource: invalid offset %q: %w", s, err)
	}
	return o, nil
}
