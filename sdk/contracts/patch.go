package contracts

import "time"

// Event is a MIDI event captured on an input port. CapturedAt is the
// transport time, in seconds, observed by the realtime callback at the moment
// the event arrived.
type Event struct {
	Data       []byte
	CapturedAt float64
}

// BridgeStats is a snapshot of the soft-failure counters maintained by the
// realtime bridge. The realtime callback never logs or raises; everything
// that goes wrong on the hot path lands in one of these counters instead.
type BridgeStats struct {
	// OutgoingDropped counts scheduled events evicted from an outgoing
	// queue because it was full.
	OutgoingDropped uint64
	// IncomingDropped counts captured events lost because an incoming
	// queue was full or briefly contended.
	IncomingDropped uint64
	// OversizedDropped counts events discarded because their payload did
	// not fit the per-event size limit.
	OversizedDropped uint64
	// MissedCycles counts cycles in which an outgoing queue could not be
	// drained because the control domain held its lock.
	MissedCycles uint64
}

// Transport is a view of the process-wide transport clock shared by every
// client of one patch server. Mutations made through any client are visible
// to all of them. Position changes take effect no later than the next
// processing cycle boundary.
type Transport interface {
	// Time returns the current transport position in seconds.
	Time() (float64, error)
	// SetTime repositions the transport. Negative values clamp to zero.
	SetTime(seconds float64) error
	// IsRolling reports whether the transport is advancing.
	IsRolling() (bool, error)
	// Start makes the transport roll.
	Start() error
	// Stop halts the transport at its current position.
	Stop() error
}

// PatchClient manages a named session on the patch server: port lifecycle,
// connection bookkeeping, the shared transport, and MIDI messaging bridged
// to and from the server's realtime thread.
//
// All methods are control-domain calls with best-effort timing and may be
// used from multiple goroutines. Failures surface synchronously from the
// call that caused them; nothing is retried implicitly.
type PatchClient interface {
	// Open connects the client to the server and activates its realtime
	// callback. Idempotent.
	Open() error
	// Close deactivates and disconnects the client. All of its ports and
	// their queues are invalidated; pending events are discarded.
	// Idempotent.
	Close() error
	// Name returns the client name, fixed at creation.
	Name() string
	// IsOpen reports whether the client currently holds a server session.
	IsOpen() bool

	// RegisterPort creates a MIDI port owned by this client, together
	// with its bridge queue.
	RegisterPort(name string, dir Direction) (Port, error)
	// UnregisterPort removes a port owned by this client and discards its
	// queue.
	UnregisterPort(p Port) error
	// Ports lists ports on the server matching the query. Every call
	// returns fresh value snapshots.
	Ports(q PortQuery) ([]Port, error)

	// Connect adds the directed edge src -> dst to the patch graph.
	// A no-op if the edge already exists. A connection attempt with the
	// directions reversed is recorded as a warning and creates nothing.
	Connect(src, dst Port) error
	// Disconnect removes the edge src -> dst; a no-op if absent.
	Disconnect(src, dst Port) error
	// Connections lists the ports connected to p, as fresh snapshots.
	Connections(p Port) ([]Port, error)

	// Send schedules payload for delivery on an output port owned by
	// this client, delay from now. Negative delays clamp to zero.
	Send(p Port, payload []byte, delay time.Duration) error
	// Receive pops the oldest captured event from an input port owned by
	// this client. The second return is false when nothing is pending;
	// callers poll at their own cadence. Single attempt, never blocks.
	Receive(p Port) (Event, bool, error)

	// Transport returns the shared transport clock.
	Transport() Transport
	// Stats returns a snapshot of the bridge's soft-failure counters.
	Stats() BridgeStats
}
