// Package server defines the boundary to the external patch server. The
// bridge consumes this interface; backends (the real JACK daemon, the
// in-process simulator) implement it. The bridge neither creates connections
// nor drives cycles itself: it only registers ports, installs one process
// callback, and reads or writes per-cycle MIDI buffers through Cycle.
package server

import (
	"errors"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// Errors a backend may report. The bridge downgrades ErrReversedConnection
// to a recorded warning; everything else propagates to the caller.
var (
	ErrReversedConnection = errors.New("connection source must be an output port and destination an input port")
	ErrNoSuchPort         = errors.New("no such port on the server")
	ErrSessionClosed      = errors.New("server session is closed")
)

// RawEvent is one MIDI event in a port's per-cycle buffer. Data is only
// valid for the duration of the cycle; consumers must copy what they keep.
type RawEvent struct {
	Frame uint32
	Data  []byte
}

// Port is an opaque handle to a port registered through a Session.
type Port interface {
	QualifiedName() string
	Direction() contracts.Direction
}

// EventWriter appends events to an output port's transmit buffer for the
// current cycle. Frame offsets must be non-decreasing across calls.
type EventWriter interface {
	// WriteEvent copies data into the buffer at the given intra-cycle
	// frame offset. It fails when the payload exceeds the server's
	// per-event limit or the buffer is out of space.
	WriteEvent(frame uint32, data []byte) error
}

// Cycle is the realtime callback's view of one processing cycle. Every
// method is bounded-time and non-blocking; nothing obtained from a Cycle may
// be retained past the callback's return.
type Cycle interface {
	// Frames returns the cycle length in frames.
	Frames() uint32
	// SampleRate returns the server sample rate in frames per second.
	SampleRate() uint32
	// TransportSeconds returns the transport position at cycle start.
	TransportSeconds() float64
	// Writer returns the transmit buffer for an output port, or nil when
	// the port is unknown this cycle.
	Writer(p Port) EventWriter
	// Events returns the receive buffer of an input port in
	// server-reported order. The returned slice is owned by the cycle.
	Events(p Port) []RawEvent
}

// ProcessFunc runs once per cycle on the server's realtime thread. It must
// never block, loop unboundedly, or let a failure escape.
type ProcessFunc func(c Cycle)

// Session is one named client connection to the patch server. Control-domain
// calls only; all methods may block and report errors synchronously.
type Session interface {
	ClientName() string

	RegisterPort(name string, dir contracts.Direction) (Port, error)
	UnregisterPort(p Port) error
	Ports(q contracts.PortQuery) ([]contracts.Port, error)

	// Connect and Disconnect take qualified port names. Both are
	// idempotent: connecting an existing edge or disconnecting an absent
	// one succeeds without effect.
	Connect(src, dst string) error
	Disconnect(src, dst string) error
	Connections(qualified string) ([]contracts.Port, error)

	// SetProcessCallback installs fn; it must be called before Activate.
	SetProcessCallback(fn ProcessFunc) error
	// Activate starts cycle delivery to this session's callback.
	Activate() error
	// Close deactivates the session and releases its ports.
	Close() error

	SampleRate() uint32
	BufferFrames() uint32

	TransportSeconds() (float64, error)
	TransportLocate(seconds float64) error
	TransportRolling() (bool, error)
	TransportStart() error
	TransportStop() error
}

// DialFunc opens a named session against one backend.
type DialFunc func(clientName string) (Session, error)
