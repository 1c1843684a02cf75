// Package toggles implements the three named feature gates of §4.5/§6:
// process-wide, read-mostly state looked up per request. Per §9, the
// lookup is a small function with an injectable backing so tests never
// need a global mutable singleton.
package toggles

const (
	// HighLevelAPI gates the entire subscription management surface.
	// When disabled, every subscription endpoint responds 501.
	HighLevelAPI = "HIGH_LEVEL_API"
	// CheckOwningApplication gates §4.3 step 1 (owning-application
	// existence check) within the create-or-get protocol.
	CheckOwningApplication = "CHECK_OWNING_APPLICATION"
	// SendBatchViaOutputStream selects the direct byte framer (C2) over
	// building an intermediate string when emitting a batch record. Both
	// paths must produce byte-identical output.
	SendBatchViaOutputStream = "SEND_BATCH_VIA_OUTPUT_STREAM"
)

// Lookup answers whether the named toggle is currently enabled. The
// production wiring backs this with internal/config's defaults; an
// external toggle service can be substituted by providing a different
// Lookup, without touching any caller.
type Lookup func(name string) bool

// Static returns a Lookup backed by a fixed map, used both by the default
// production wiring (seeded from config) and by tests.
func Static(values map[string]bool) Lookup {
	// Copy defensively so callers can't mutate the backing map after the
	// fact and have it silently change behavior underneath a running
	// server.
	snapshot := make(map[string]bool, len(values))
	for k, v := range values {
		snapshot[k] = v
	}
	return func(name string) bool {
		return snapshot[name]
	}
}
