package streaming

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/eventbroker/internal/blacklist"
	"github.com/adred-codev/eventbroker/internal/streaming/kafkasource"
	"github.com/adred-codev/eventbroker/internal/wire"
)

// ExitReason names why the Engine's loop stopped, for metrics and logs.
type ExitReason string

const (
	ExitStreamLimit      ExitReason = "stream_limit"
	ExitStreamTimeout    ExitReason = "stream_timeout"
	ExitKeepAliveLimit   ExitReason = "keep_alive_limit"
	ExitBlacklisted      ExitReason = "blacklisted"
	ExitClientDisconnect ExitReason = "client_disconnect"
	ExitSinkError        ExitReason = "sink_error"
	ExitConsumerError    ExitReason = "consumer_error"
	ExitContextDone      ExitReason = "context_done"
)

// ErrPartitionRevoked is the error a kafkasource.Port implementation
// returns to report that the engine's partition assignment was revoked
// mid-stream. Classified as an "illegal consumer state" failure
// (info-level, per §4.2) rather than an upstream log error (error-level).
// The franz-go Consumer in kafkasource does not return it; it only logs
// revocations.
var ErrPartitionRevoked = errors.New("streaming: partition revoked")

// partitionState is the engine's per-partition bookkeeping.
type partitionState struct {
	currentBatch    [][]byte
	batchStartTime  time.Time
	keepAliveInARow int
	latestOffset    wire.NakadiCursor
}

// Engine is the stream engine (C5): the per-connection loop that drains a
// multi-partition consumer, assembles per-partition batches, and emits
// them in the canonical newline-delimited framing until one of four
// independent termination conditions fires.
type Engine struct {
	cfg        Config
	consumer   kafkasource.Port
	sink       Flusher
	blacklist  blacklist.Checker
	logger     zerolog.Logger
	connReady  func() bool
	now        func() time.Time
	onFlush    func(partition string, bytesWritten int, eventCount int)
	idleDelay  time.Duration
	writeBatch BatchWriter

	partitionOrder []string
	partitions     map[string]*partitionState
	messagesRead   int
	startTime      time.Time
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests to drive
// batchTimeout/streamTimeout without sleeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIdleDelay overrides how long the loop waits between ticks when a
// read finds nothing and no partition is due a flush, to avoid a busy
// spin. Defaults to 10ms; tests typically set this to 0.
func WithIdleDelay(d time.Duration) Option {
	return func(e *Engine) { e.idleDelay = d }
}

// WithFlushObserver registers a callback invoked after every successful
// flush, primarily for metrics (bytes-flushed counter, batch counts).
func WithFlushObserver(f func(partition string, bytesWritten int, eventCount int)) Option {
	return func(e *Engine) { e.onFlush = f }
}

// WithBatchWriter overrides how a batch record is assembled and written to
// the sink. Defaults to WriteBatch; the SEND_BATCH_VIA_OUTPUT_STREAM=false
// path (§4.5) passes WriteBatchViaString instead.
func WithBatchWriter(w BatchWriter) Option {
	return func(e *Engine) { e.writeBatch = w }
}

// NewEngine builds an Engine over consumer and sink, owning both for the
// duration of Run. connReady reports whether the client connection is
// still usable; it is polled at the top of every loop iteration.
func NewEngine(cfg Config, consumer kafkasource.Port, sink Flusher, blacklistChecker blacklist.Checker, logger zerolog.Logger, connReady func() bool, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:       cfg,
		consumer:  consumer,
		sink:      sink,
		blacklist: blacklistChecker,
		logger:    logger.With().Str("component", "stream-engine").Str("event_type", cfg.EventTypeName).Logger(),
		connReady:  connReady,
		now:        time.Now,
		idleDelay:  10 * time.Millisecond,
		writeBatch: WriteBatch,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.partitions = make(map[string]*partitionState, len(cfg.Cursors))
	e.partitionOrder = make([]string, 0, len(cfg.Cursors))
	e.startTime = e.now()
	for _, cur := range cfg.Cursors {
		e.partitionOrder = append(e.partitionOrder, cur.Partition)
		e.partitions[cur.Partition] = &partitionState{
			batchStartTime: e.startTime,
			latestOffset:   cur,
		}
	}
	return e, nil
}

// Run drives the loop until a termination condition fires. It always
// closes the consumer before returning, on every exit path, and never
// propagates an error to be written to the client: by the time Run is
// called, response headers are already on the wire. The returned error,
// when non-nil, is for logging/metrics only.
func (e *Engine) Run(ctx context.Context) (ExitReason, error) {
	defer e.consumer.Close()

	for {
		select {
		case <-ctx.Done():
			return ExitContextDone, ctx.Err()
		default:
		}

		// 1. Termination guard.
		if !e.connReady() {
			e.logger.Info().Str("app", e.cfg.ConsumingAppID).Msg("client disconnected, terminating stream")
			return ExitClientDisconnect, nil
		}
		if e.blacklist.IsBlocked(e.cfg.EventTypeName, e.cfg.ConsumingAppID) {
			e.logger.Info().Str("app", e.cfg.ConsumingAppID).Msg("consumption blacklisted, terminating stream")
			return ExitBlacklisted, nil
		}

		// 2. Read one event.
		event, ok, err := e.consumer.ReadEvent(ctx)
		if err != nil {
			if errors.Is(err, ErrPartitionRevoked) {
				e.logger.Info().Err(err).Msg("partition revoked, terminating stream")
			} else {
				e.logger.Error().Err(err).Msg("upstream log error, terminating stream")
			}
			return ExitConsumerError, err
		}
		if ok {
			ps := e.partitionFor(event.Position)
			ps.latestOffset = event.Position
			ps.currentBatch = append(ps.currentBatch, event.Event)
			ps.keepAliveInARow = 0
			e.messagesRead++
		}

		// 3. Per-partition flush pass.
		now := e.now()
		for _, p := range e.partitionOrder {
			ps := e.partitions[p]
			elapsed := now.Sub(ps.batchStartTime)
			if elapsed >= e.cfg.BatchTimeout || len(ps.currentBatch) >= e.cfg.BatchLimit {
				if err := e.flush(ps); err != nil {
					e.logger.Info().Err(err).Msg("sink write failed, terminating stream")
					return ExitSinkError, err
				}
				ps.batchStartTime = now
			}
		}

		// 4. Keep-alive terminator.
		if e.cfg.StreamKeepAliveLimit != 0 && e.allPartitionsIdle() {
			e.logger.Info().Msg("keep-alive limit reached, terminating stream")
			return ExitKeepAliveLimit, nil
		}

		// 5. Global terminators.
		streamTimedOut := e.cfg.StreamTimeout != 0 && now.Sub(e.startTime) >= e.cfg.StreamTimeout
		streamLimitHit := e.cfg.StreamLimit != 0 && e.messagesRead >= e.cfg.StreamLimit
		if streamTimedOut || streamLimitHit {
			for _, p := range e.partitionOrder {
				ps := e.partitions[p]
				if len(ps.currentBatch) > 0 {
					if err := e.flush(ps); err != nil {
						e.logger.Info().Err(err).Msg("sink write failed during final flush")
						return ExitSinkError, err
					}
				}
			}
			if streamLimitHit {
				return ExitStreamLimit, nil
			}
			return ExitStreamTimeout, nil
		}

		if !ok {
			time.Sleep(e.idleDelay)
		}
	}
}

// flush emits ps's current batch (possibly empty, i.e. a keep-alive) and
// clears it. A flush whose batch was empty when sent counts toward the
// partition's keep-alive-in-a-row tally.
func (e *Engine) flush(ps *partitionState) error {
	n, err := e.writeBatch(e.sink, ps.latestOffset.ToWire(), ps.currentBatch)
	if err != nil {
		return err
	}
	if e.onFlush != nil {
		e.onFlush(ps.latestOffset.Partition, n, len(ps.currentBatch))
	}
	wasEmpty := len(ps.currentBatch) == 0
	ps.currentBatch = nil
	if wasEmpty {
		ps.keepAliveInARow++
	}
	return nil
}

func (e *Engine) allPartitionsIdle() bool {
	for _, p := range e.partitionOrder {
		if e.partitions[p].keepAliveInARow < e.cfg.StreamKeepAliveLimit {
			return false
		}
	}
	return true
}

func (e *Engine) partitionFor(pos wire.NakadiCursor) *partitionState {
	ps, found := e.partitions[pos.Partition]
	if !found {
		ps = &partitionState{batchStartTime: e.now(), latestOffset: pos}
		e.partitions[pos.Partition] = ps
		e.partitionOrder = append(e.partitionOrder, pos.Partition)
	}
	return ps
}
