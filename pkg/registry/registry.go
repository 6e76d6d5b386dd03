// Package registry tracks session identity and lifecycle records.
//
// The registry is the only intentionally shared mutable state in the
// server core. It serves two purposes: admission counting (how many
// sessions are active right now) and introspection (the status report and
// the HTTP sessions endpoint). History is append-only: records are marked
// inactive on disconnect, never deleted.
package registry

import (
	"fmt"
	"sync"
	"time"
)

// TimeFormat is the timestamp layout used in status reports.
const TimeFormat = "2006-01-02 15:04:05"

// SessionRecord is one session's lifecycle entry.
//
// A record transitions active→inactive at most once; after that it is
// immutable. DisconnectedAt is zero while the session is active.
type SessionRecord struct {
	Name           string    `json:"name"`
	RemoteAddr     string    `json:"remote_addr"`
	ConnectedAt    time.Time `json:"connected_at"`
	DisconnectedAt time.Time `json:"disconnected_at,omitzero"`
	Active         bool      `json:"active"`
}

// Registry is a thread-safe, append-only table of session records.
//
// One mutex guards the record map, the insertion-order list, and the name
// counter; that single exclusion domain is what guarantees both name
// uniqueness and a consistent ActiveCount against concurrent sessions.
// No registry operation performs I/O while holding the lock.
type Registry struct {
	mu      sync.Mutex
	records map[string]*SessionRecord
	order   []string // insertion order for reporting
	counter int      // mints Client01, Client02, ...
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*SessionRecord),
	}
}

// NextName mints the next session name from the monotonically increasing
// counter: Client01, Client02, ... Names are never reused, so a rejected
// handshake after minting burns the name rather than risking a collision.
func (r *Registry) NextName() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	return fmt.Sprintf("Client%02d", r.counter)
}

// RegisterConnect creates a new active record for name. It fails only if
// the name is already present, which the naming scheme prevents for
// server-minted names; a client claiming a duplicate name is the one case
// that can trip it.
func (r *Registry) RegisterConnect(name, remoteAddr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; exists {
		return fmt.Errorf("session %q already registered", name)
	}

	r.records[name] = &SessionRecord{
		Name:        name,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		Active:      true,
	}
	r.order = append(r.order, name)
	return nil
}

// RegisterDisconnect marks the record for name inactive with a disconnect
// timestamp. Idempotent: the first call wins the timestamp, later calls
// and unknown names are no-ops.
func (r *Registry) RegisterDisconnect(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok || !rec.Active {
		return
	}

	rec.Active = false
	rec.DisconnectedAt = time.Now()
}

// ActiveCount returns the number of records still marked active.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, rec := range r.records {
		if rec.Active {
			count++
		}
	}
	return count
}

// Snapshot returns copies of all records in insertion order.
func (r *Registry) Snapshot() []SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]SessionRecord, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.records[name])
	}
	return out
}

// FormatStatus renders the status report, one line per record in insertion
// order, bracketed by a fixed header. An empty registry yields a fixed
// placeholder line instead of a zero-line report.
func (r *Registry) FormatStatus() []string {
	snapshot := r.Snapshot()

	lines := []string{"=== Server Cache ==="}
	if len(snapshot) == 0 {
		return append(lines, "(no connections yet)")
	}

	for _, rec := range snapshot {
		state := "ACTIVE"
		disconnected := "None"
		if !rec.Active {
			state = "DISCONNECTED"
			disconnected = rec.DisconnectedAt.Format(TimeFormat)
		}
		lines = append(lines, fmt.Sprintf("%s [%s] | addr=%s | connected=%s | disconnected=%s",
			rec.Name, state, rec.RemoteAddr,
			rec.ConnectedAt.Format(TimeFormat), disconnected))
	}
	return lines
}
