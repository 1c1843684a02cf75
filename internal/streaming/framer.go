package streaming

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/adred-codev/eventbroker/internal/wire"
)

// BatchWriter is the shape shared by WriteBatch and WriteBatchViaString, so
// the engine can be configured with either without knowing which one it
// holds.
type BatchWriter func(sink Flusher, cursor wire.Cursor, events [][]byte) (int, error)

// Flusher is satisfied by any sink the framer can write a record to and
// then flush, surfacing the client's data promptly.
type Flusher interface {
	io.Writer
	Flush() error
}

// bufFlusher adapts a bufio.Writer to Flusher so callers that only have a
// raw http.ResponseWriter can still use the framer.
type bufFlusher struct {
	*bufio.Writer
}

// NewBufferedSink wraps w so it satisfies Flusher. http.ResponseWriter
// implements io.Writer but has no Flush of its own that drains this
// buffer, so callers that need per-record flushing to the client (an
// http.Flusher) should flush that separately after each WriteBatch call;
// this wrapper exists for sinks (files, byte buffers, tests) that have no
// flush semantics of their own.
func NewBufferedSink(w io.Writer) Flusher {
	return bufFlusher{bufio.NewWriter(w)}
}

// WriteBatch emits exactly one newline-delimited batch record to sink and
// flushes it. Canonical byte order, per §4.1:
//
//	{"cursor":{"partition":"P","offset":"O"}[,"events":[E1,E2,...]]}\n
//
// Event bytes are written verbatim: the framer never validates or
// re-serializes them, the caller guarantees every element is already
// valid, newline-free JSON. Returns the number of bytes written for this
// record (for the bytes-flushed counter) and any I/O error encountered.
func WriteBatch(sink Flusher, cursor wire.Cursor, events [][]byte) (int, error) {
	n := 0
	write := func(p []byte) error {
		written, err := sink.Write(p)
		n += written
		return err
	}

	if err := write([]byte(`{"cursor":{"partition":"`)); err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}
	if err := write([]byte(cursor.Partition)); err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}
	if err := write([]byte(`","offset":"`)); err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}
	if err := write([]byte(cursor.Offset)); err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}
	if err := write([]byte(`"}`)); err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}

	if len(events) > 0 {
		if err := write([]byte(`,"events":[`)); err != nil {
			return n, fmt.Errorf("streaming: write batch: %w", err)
		}
		for i, ev := range events {
			if i > 0 {
				if err := write([]byte(",")); err != nil {
					return n, fmt.Errorf("streaming: write batch: %w", err)
				}
			}
			if err := write(ev); err != nil {
				return n, fmt.Errorf("streaming: write batch: %w", err)
			}
		}
		if err := write([]byte("]")); err != nil {
			return n, fmt.Errorf("streaming: write batch: %w", err)
		}
	}

	if err := write([]byte("}\n")); err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}

	if err := sink.Flush(); err != nil {
		return n, fmt.Errorf("streaming: flush batch: %w", err)
	}
	return n, nil
}

// WriteBatchViaString is the SEND_BATCH_VIA_OUTPUT_STREAM=false path from
// §4.5: it assembles the entire record as one string via strings.Builder
// before ever touching sink, then issues a single Write and Flush. Produces
// byte-identical output to WriteBatch; the difference is purely where the
// record is assembled (a builder vs. direct repeated writes to sink).
func WriteBatchViaString(sink Flusher, cursor wire.Cursor, events [][]byte) (int, error) {
	var b strings.Builder
	b.WriteString(`{"cursor":{"partition":"`)
	b.WriteString(cursor.Partition)
	b.WriteString(`","offset":"`)
	b.WriteString(cursor.Offset)
	b.WriteString(`"}`)

	if len(events) > 0 {
		b.WriteString(`,"events":[`)
		for i, ev := range events {
			if i > 0 {
				b.WriteByte(',')
			}
			b.Write(ev)
		}
		b.WriteByte(']')
	}
	b.WriteString("}\n")

	n, err := sink.Write([]byte(b.String()))
	if err != nil {
		return n, fmt.Errorf("streaming: write batch: %w", err)
	}
	if err := sink.Flush(); err != nil {
		return n, fmt.Errorf("streaming: flush batch: %w", err)
	}
	return n, nil
}
