package streaming_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/eventbroker/internal/blacklist"
	"github.com/adred-codev/eventbroker/internal/streaming"
	"github.com/adred-codev/eventbroker/internal/streaming/kafkasource"
	"github.com/adred-codev/eventbroker/internal/wire"
)

// fakePort is a scriptable kafkasource.Port: it yields the queued events in
// order, then reports "none" forever after.
type fakePort struct {
	queue  []wire.ConsumedEvent
	closed bool
}

func (p *fakePort) ReadEvent(ctx context.Context) (wire.ConsumedEvent, bool, error) {
	if len(p.queue) == 0 {
		return wire.ConsumedEvent{}, false, nil
	}
	ev := p.queue[0]
	p.queue = p.queue[1:]
	return ev, true, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

// fakeClock advances by step every time Now is called, so a single-step
// test can deterministically force batchTimeout-driven flushes without
// sleeping in real time.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func event(partition, offset string, payload string) wire.ConsumedEvent {
	return wire.ConsumedEvent{
		Event:    []byte(payload),
		Position: wire.NakadiCursor{EventType: "orders", Partition: partition, Offset: offset},
	}
}

func TestEngine_KeepAlive(t *testing.T) {
	cfg := streaming.Config{
		EventTypeName:        "orders",
		ConsumingAppID:       "app",
		Cursors:              []wire.NakadiCursor{{EventType: "orders", Partition: "0", Offset: "000"}},
		BatchLimit:           100,
		BatchTimeout:         time.Second,
		StreamKeepAliveLimit: 2,
	}
	port := &fakePort{}
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)
	clock := &fakeClock{t: time.Unix(0, 0), step: 2 * time.Second}

	eng, err := streaming.NewEngine(cfg, port, sink, blacklist.NewStatic(), zerolog.Nop(), func() bool { return true },
		streaming.WithClock(clock.Now), streaming.WithIdleDelay(0))
	require.NoError(t, err)

	reason, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, streaming.ExitKeepAliveLimit, reason)
	require.True(t, port.closed)

	want := `{"cursor":{"partition":"0","offset":"000"}}` + "\n" +
		`{"cursor":{"partition":"0","offset":"000"}}` + "\n"
	require.Equal(t, want, buf.String())
}

func TestEngine_SingleBatch(t *testing.T) {
	cfg := streaming.Config{
		EventTypeName:  "orders",
		ConsumingAppID: "app",
		Cursors:        []wire.NakadiCursor{{EventType: "orders", Partition: "0", Offset: "000"}},
		BatchLimit:     3,
		BatchTimeout:   time.Hour,
		StreamLimit:    3,
	}
	port := &fakePort{queue: []wire.ConsumedEvent{
		event("0", "001", `{"a":1}`),
		event("0", "002", `{"a":2}`),
		event("0", "003", `{"a":3}`),
	}}
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	eng, err := streaming.NewEngine(cfg, port, sink, blacklist.NewStatic(), zerolog.Nop(), func() bool { return true },
		streaming.WithIdleDelay(0))
	require.NoError(t, err)

	reason, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, streaming.ExitStreamLimit, reason)

	want := `{"cursor":{"partition":"0","offset":"003"},"events":[{"a":1},{"a":2},{"a":3}]}` + "\n"
	require.Equal(t, want, buf.String())
}

func TestEngine_StreamLimitCutoff(t *testing.T) {
	cfg := streaming.Config{
		EventTypeName:  "orders",
		ConsumingAppID: "app",
		Cursors:        []wire.NakadiCursor{{EventType: "orders", Partition: "0", Offset: "000"}},
		BatchLimit:     100,
		BatchTimeout:   time.Hour,
		StreamLimit:    2,
	}
	port := &fakePort{queue: []wire.ConsumedEvent{
		event("0", "001", `{"a":1}`),
		event("0", "002", `{"a":2}`),
		event("0", "003", `{"a":3}`),
		event("0", "004", `{"a":4}`),
	}}
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	eng, err := streaming.NewEngine(cfg, port, sink, blacklist.NewStatic(), zerolog.Nop(), func() bool { return true },
		streaming.WithIdleDelay(0))
	require.NoError(t, err)

	reason, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, streaming.ExitStreamLimit, reason)

	want := `{"cursor":{"partition":"0","offset":"002"},"events":[{"a":1},{"a":2}]}` + "\n"
	require.Equal(t, want, buf.String())
}

func TestEngine_BlacklistedExitDoesNotDrain(t *testing.T) {
	cfg := streaming.Config{
		EventTypeName:  "orders",
		ConsumingAppID: "blocked-app",
		Cursors:        []wire.NakadiCursor{{EventType: "orders", Partition: "0", Offset: "000"}},
		BatchLimit:     100,
		BatchTimeout:   time.Hour,
	}
	port := &fakePort{queue: []wire.ConsumedEvent{event("0", "001", `{"a":1}`)}}
	var buf bytes.Buffer
	sink := streaming.NewBufferedSink(&buf)

	calls := 0
	bl := blacklistFunc(func(eventType, app string) bool {
		calls++
		// Not blocked on the first guard check (so the read that builds a
		// partial, never-flushed batch happens), blocked from the second
		// check onward.
		return calls > 1
	})

	eng, err := streaming.NewEngine(cfg, port, sink, bl, zerolog.Nop(), func() bool { return true },
		streaming.WithIdleDelay(0))
	require.NoError(t, err)

	reason, err := eng.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, streaming.ExitBlacklisted, reason)
	require.Empty(t, buf.String(), "blacklisted exit must not drain pending batches")
}

// blacklistFunc adapts a function literal to blacklist.Checker for tests.
type blacklistFunc func(eventType, consumingApp string) bool

func (f blacklistFunc) IsBlocked(eventType, consumingApp string) bool { return f(eventType, consumingApp) }

var _ kafkasource.Port = (*fakePort)(nil)
