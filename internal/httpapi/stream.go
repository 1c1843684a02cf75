package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adred-codev/eventbroker/internal/streaming"
	"github.com/adred-codev/eventbroker/internal/streaming/kafkasource"
	"github.com/adred-codev/eventbroker/internal/telemetry"
	"github.com/adred-codev/eventbroker/internal/toggles"
	"github.com/adred-codev/eventbroker/internal/wire"
)

// PartitionSourceFactory builds the kafkasource.Port backing one streaming
// connection, given the event type and the starting cursors resolved from
// the request. Production wiring closes over the broker list and consumer
// group naming; tests substitute a factory returning a fake Port.
type PartitionSourceFactory func(eventType, consumingApp string, cursors []wire.NakadiCursor) (kafkasource.Port, error)

// responseSink adapts an http.ResponseWriter (with its http.Flusher) to
// streaming.Flusher, so the framer's writes reach the client immediately
// instead of sitting in net/http's own internal buffering.
type responseSink struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s responseSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s responseSink) Flush() error {
	s.f.Flush()
	return nil
}

// handleStream serves a single low-level streaming connection (C1-C6): it
// resolves (event type, consuming app, cursors, limits) from the request,
// builds a stream engine over a fresh partition consumer, and runs it to
// completion, writing newline-delimited batch records as they're flushed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	eventType := chi.URLParam(r, "name")
	consumingApp := r.Header.Get("X-Consumer-App")
	if consumingApp == "" {
		respondProblem(w, http.StatusBadRequest, "Bad Request", "X-Consumer-App header is required")
		return
	}

	cursors, err := parseCursors(r, eventType)
	if err != nil {
		respondProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	cfg := streaming.Config{
		EventTypeName:        eventType,
		ConsumingAppID:       consumingApp,
		Cursors:              cursors,
		BatchLimit:           intParam(r, "batch_limit", s.defaults.BatchLimit),
		BatchTimeout:         durationParam(r, "batch_flush_timeout", s.defaults.BatchTimeout),
		StreamLimit:          intParam(r, "stream_limit", s.defaults.StreamLimit),
		StreamTimeout:        durationParam(r, "stream_timeout", s.defaults.StreamTimeout),
		StreamKeepAliveLimit: intParam(r, "stream_keep_alive_limit", s.defaults.StreamKeepAliveLimit),
	}
	if err := cfg.Validate(); err != nil {
		respondProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	consumer, err := s.sources(eventType, consumingApp, cursors)
	if err != nil {
		respondProblem(w, http.StatusServiceUnavailable, "Service Unavailable", "could not open partition consumer")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		consumer.Close()
		respondProblem(w, http.StatusInternalServerError, "Internal Server Error", "response writer does not support streaming")
		return
	}

	w.Header().Set("Content-Type", "application/x-json-stream")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	connReady := func() bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	logger := s.logger.With().Str("event_type", eventType).Str("app", consumingApp).Logger()
	engineOpts := []streaming.Option{
		streaming.WithFlushObserver(func(partition string, bytesWritten int, eventCount int) {
			telemetry.BytesFlushed.WithLabelValues(eventType).Add(float64(bytesWritten))
			telemetry.BatchesEmitted.WithLabelValues(eventType).Inc()
			if eventCount == 0 {
				telemetry.KeepAlivesEmitted.WithLabelValues(eventType).Inc()
			}
		}),
	}
	if !s.toggles(toggles.SendBatchViaOutputStream) {
		// §4.5: assemble the record via strings.Builder instead of writing
		// the byte framer's pieces straight to the sink.
		engineOpts = append(engineOpts, streaming.WithBatchWriter(streaming.WriteBatchViaString))
	}
	engine, err := streaming.NewEngine(cfg, consumer, responseSink{w: w, f: flusher}, s.blacklist, logger, connReady, engineOpts...)
	if err != nil {
		consumer.Close()
		logger.Error().Err(err).Msg("failed to build stream engine")
		return
	}

	telemetry.ActiveStreams.Inc()
	defer telemetry.ActiveStreams.Dec()

	reason, err := engine.Run(ctx)
	telemetry.StreamExits.WithLabelValues(eventType, string(reason)).Inc()
	if err != nil {
		logger.Info().Err(err).Str("reason", string(reason)).Msg("stream ended")
	} else {
		logger.Info().Str("reason", string(reason)).Msg("stream ended")
	}
}

// cursorParam is the wire shape of one entry in the X-Nakadi-Cursors
// request header, mirroring wire.Cursor but kept local so this package
// doesn't need to reach into wire's JSON tags for request parsing.
type cursorParam struct {
	Partition string `json:"partition"`
	Offset    string `json:"offset"`
}

// parseCursors reads the starting cursors for a stream from the
// X-Nakadi-Cursors header, a JSON array of {partition, offset} pairs.
func parseCursors(r *http.Request, eventType string) ([]wire.NakadiCursor, error) {
	raw := r.Header.Get("X-Nakadi-Cursors")
	if raw == "" {
		return nil, errBadCursors
	}
	var parsed []cursorParam
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, errBadCursors
	}
	if len(parsed) == 0 {
		return nil, errBadCursors
	}
	cursors := make([]wire.NakadiCursor, 0, len(parsed))
	for _, p := range parsed {
		if p.Partition == "" || p.Offset == "" {
			return nil, errBadCursors
		}
		cursors = append(cursors, wire.NakadiCursor{EventType: eventType, Partition: p.Partition, Offset: p.Offset})
	}
	return cursors, nil
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func durationParam(r *http.Request, name string, def time.Duration) time.Duration {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return time.Duration(seconds) * time.Second
}

var errBadCursors = &cursorFormatError{}

// cursorFormatError reports a malformed X-Nakadi-Cursors header.
type cursorFormatError struct{}

func (*cursorFormatError) Error() string {
	return "X-Nakadi-Cursors header must be a non-empty JSON array of {partition, offset} objects"
}
