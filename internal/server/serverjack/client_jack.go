//go:build jack
// +build jack

// Package serverjack implements the server boundary against a running JACK
// daemon via github.com/xthexder/go-jack. Build with the "jack" tag and the
// JACK development headers installed; without the tag a dummy that reports
// the server as unavailable is compiled instead.
package serverjack

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
	"github.com/xthexder/go-jack"
)

// jackPort wraps one registered JACK port. buf caches the port's cycle
// buffer between the top of process and the callback's writes.
type jackPort struct {
	qualified string
	dir       contracts.Direction
	port      *jack.Port
	buf       jack.MidiBuffer
	md        jack.MidiData
	raw       []server.RawEvent
}

func (p *jackPort) QualifiedName() string          { return p.qualified }
func (p *jackPort) Direction() contracts.Direction { return p.dir }

// Session is one live connection to jackd.
type Session struct {
	mu     sync.Mutex
	name   string
	client *jack.Client
	closed bool
	cb     server.ProcessFunc
	ports  map[string]*jackPort

	// rtPorts snapshots the owned ports for the process callback.
	rtPorts atomic.Value
}

// Dial opens a JACK client session. The daemon must already be running.
func Dial(clientName string) (server.Session, error) {
	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil {
		if status != 0 {
			return nil, fmt.Errorf("%w: %v", contracts.ErrServerUnavailable, jack.Strerror(status))
		}
		return nil, contracts.ErrServerUnavailable
	}
	s := &Session{
		name:   client.GetName(),
		client: client,
		ports:  make(map[string]*jackPort),
	}
	s.rtPorts.Store([]*jackPort{})
	return s, nil
}

// ClientName returns the name jackd assigned to this session.
func (s *Session) ClientName() string { return s.name }

// RegisterPort registers a MIDI port with the daemon.
func (s *Session) RegisterPort(name string, dir contracts.Direction) (server.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, server.ErrSessionClosed
	}

	flags := uint64(jack.PortIsInput)
	if dir == contracts.Output {
		flags = uint64(jack.PortIsOutput)
	}
	port := s.client.PortRegister(name, jack.DEFAULT_MIDI_TYPE, flags, 0)
	if port == nil {
		return nil, fmt.Errorf("registering port %q with jackd failed", name)
	}
	p := &jackPort{
		qualified: s.name + ":" + name,
		dir:       dir,
		port:      port,
		raw:       make([]server.RawEvent, 0, 64),
	}
	s.ports[p.qualified] = p
	s.storeSnapshotLocked()
	return p, nil
}

// UnregisterPort removes a port from the daemon.
func (s *Session) UnregisterPort(p server.Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	jp, ok := p.(*jackPort)
	if !ok {
		return fmt.Errorf("%w: %s", server.ErrNoSuchPort, p.QualifiedName())
	}
	if status := s.client.PortUnregister(jp.port); status != 0 {
		return fmt.Errorf("unregistering %s: %v", jp.qualified, jack.Strerror(status))
	}
	delete(s.ports, jp.qualified)
	s.storeSnapshotLocked()
	return nil
}

// Ports lists daemon ports matching the query. JACK takes the name and type
// patterns as regexes directly.
func (s *Session) Ports(q contracts.PortQuery) ([]contracts.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, server.ErrSessionClosed
	}

	typePattern := q.TypePattern
	if typePattern == "" {
		typePattern = "midi"
	}
	names := s.client.GetPorts(q.NamePattern, typePattern, flagsToJack(q))
	out := make([]contracts.Port, 0, len(names))
	for _, name := range names {
		port := s.client.GetPortByName(name)
		if port == nil {
			continue
		}
		snap, ok := portSnapshot(name, port)
		if !ok {
			continue
		}
		if q.Dir != 0 && snap.Dir != q.Dir {
			continue
		}
		if q.MineOnly && snap.ClientName != s.name {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Connect adds the edge src -> dst. jackd reports an existing edge with
// EEXIST, which counts as success here.
func (s *Session) Connect(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	switch status := s.client.Connect(src, dst); status {
	case 0, jack.EEXIST:
		return nil
	default:
		return fmt.Errorf("connecting %s -> %s: %v", src, dst, jack.Strerror(status))
	}
}

// Disconnect removes the edge src -> dst; an absent edge is a no-op.
func (s *Session) Disconnect(src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	// jackd fails the call when the edge does not exist; idempotency is
	// part of this boundary's contract, so that case is swallowed.
	if status := s.client.Disconnect(src, dst); status != 0 && status != jack.ENOENT {
		return fmt.Errorf("disconnecting %s -> %s: %v", src, dst, jack.Strerror(status))
	}
	return nil
}

// Connections lists the ports connected to one qualified port name.
func (s *Session) Connections(qualified string) ([]contracts.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, server.ErrSessionClosed
	}
	port := s.client.GetPortByName(qualified)
	if port == nil {
		return nil, fmt.Errorf("%w: %s", server.ErrNoSuchPort, qualified)
	}
	peers := port.GetConnections()
	out := make([]contracts.Port, 0, len(peers))
	for _, name := range peers {
		peer := s.client.GetPortByName(name)
		if peer == nil {
			continue
		}
		if snap, ok := portSnapshot(name, peer); ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

// SetProcessCallback installs fn behind the JACK process callback.
func (s *Session) SetProcessCallback(fn server.ProcessFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	s.cb = fn
	if status := s.client.SetProcessCallback(s.process); status != 0 {
		return fmt.Errorf("setting process callback: %v", jack.Strerror(status))
	}
	return nil
}

// Activate starts realtime processing for this client.
func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	if status := s.client.Activate(); status != 0 {
		return fmt.Errorf("activating jack client: %v", jack.Strerror(status))
	}
	return nil
}

// Close disconnects from the daemon. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.rtPorts.Store([]*jackPort{})
	s.ports = make(map[string]*jackPort)
	if status := s.client.Close(); status != 0 {
		return fmt.Errorf("closing jack client: %v", jack.Strerror(status))
	}
	return nil
}

// SampleRate returns the daemon sample rate.
func (s *Session) SampleRate() uint32 { return s.client.GetSampleRate() }

// BufferFrames returns the daemon cycle length in frames.
func (s *Session) BufferFrames() uint32 { return s.client.GetBufferSize() }

// TransportSeconds returns the daemon transport position in seconds.
func (s *Session) TransportSeconds() (float64, error) {
	if s.isClosed() {
		return 0, server.ErrSessionClosed
	}
	var pos jack.TransportPosition
	s.client.TransportQuery(&pos)
	if pos.FrameRate == 0 {
		return 0, nil
	}
	return float64(pos.Frame) / float64(pos.FrameRate), nil
}

// TransportLocate repositions the daemon transport; negatives clamp to zero.
func (s *Session) TransportLocate(seconds float64) error {
	if s.isClosed() {
		return server.ErrSessionClosed
	}
	if seconds < 0 {
		seconds = 0
	}
	frame := uint32(seconds * float64(s.client.GetSampleRate()))
	if status := s.client.TransportLocate(frame); status != 0 {
		return fmt.Errorf("transport locate: %v", jack.Strerror(status))
	}
	return nil
}

// TransportRolling reports whether the daemon transport is rolling.
func (s *Session) TransportRolling() (bool, error) {
	if s.isClosed() {
		return false, server.ErrSessionClosed
	}
	var pos jack.TransportPosition
	state := s.client.TransportQuery(&pos)
	return state == jack.TransportRolling, nil
}

// TransportStart makes the daemon transport roll.
func (s *Session) TransportStart() error {
	if s.isClosed() {
		return server.ErrSessionClosed
	}
	s.client.TransportStart()
	return nil
}

// TransportStop halts the daemon transport.
func (s *Session) TransportStop() error {
	if s.isClosed() {
		return server.ErrSessionClosed
	}
	s.client.TransportStop()
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) storeSnapshotLocked() {
	snap := make([]*jackPort, 0, len(s.ports))
	for _, p := range s.ports {
		snap = append(snap, p)
	}
	s.rtPorts.Store(snap)
}

// process adapts the JACK callback to the boundary's Cycle. Output buffers
// are cleared once up front, then the installed callback runs.
func (s *Session) process(nframes uint32) int {
	ports, _ := s.rtPorts.Load().([]*jackPort)
	for _, p := range ports {
		if p.dir == contracts.Output {
			p.buf = p.port.MidiClearBuffer(nframes)
		}
	}
	if s.cb != nil {
		s.cb(&cycle{s: s, frames: nframes})
	}
	return 0
}

// cycle is the per-callback view over the daemon's buffers.
type cycle struct {
	s      *Session
	frames uint32
}

func (c *cycle) Frames() uint32     { return c.frames }
func (c *cycle) SampleRate() uint32 { return c.s.client.GetSampleRate() }

func (c *cycle) TransportSeconds() float64 {
	var pos jack.TransportPosition
	c.s.client.TransportQuery(&pos)
	if pos.FrameRate == 0 {
		return 0
	}
	return float64(pos.Frame) / float64(pos.FrameRate)
}

func (c *cycle) Writer(p server.Port) server.EventWriter {
	jp, ok := p.(*jackPort)
	if !ok || jp.dir != contracts.Output {
		return nil
	}
	return &portWriter{p: jp}
}

func (c *cycle) Events(p server.Port) []server.RawEvent {
	jp, ok := p.(*jackPort)
	if !ok || jp.dir != contracts.Input {
		return nil
	}
	jp.raw = jp.raw[:0]
	for _, ev := range jp.port.GetMidiEvents(c.frames) {
		jp.raw = append(jp.raw, server.RawEvent{Frame: ev.Time, Data: ev.Buffer})
	}
	return jp.raw
}

// portWriter writes events into a JACK output port's cycle buffer.
type portWriter struct {
	p *jackPort
}

func (w *portWriter) WriteEvent(frame uint32, data []byte) error {
	w.p.md.Time = frame
	w.p.md.Buffer = data
	if status := w.p.port.MidiEventWrite(&w.p.md, w.p.buf); status != 0 {
		return fmt.Errorf("midi event write failed: %d", status)
	}
	return nil
}

func flagsToJack(q contracts.PortQuery) uint64 {
	var flags uint64
	if q.Dir == contracts.Input {
		flags |= uint64(jack.PortIsInput)
	}
	if q.Dir == contracts.Output {
		flags |= uint64(jack.PortIsOutput)
	}
	if q.Flags&contracts.Physical != 0 {
		flags |= uint64(jack.PortIsPhysical)
	}
	if q.Flags&contracts.CanMonitor != 0 {
		flags |= uint64(jack.PortCanMonitor)
	}
	if q.Flags&contracts.Terminal != 0 {
		flags |= uint64(jack.PortIsTerminal)
	}
	return flags
}

func portSnapshot(qualified string, port *jack.Port) (contracts.Port, bool) {
	clientName, name := qualified, ""
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == ':' {
			clientName, name = qualified[:i], qualified[i+1:]
			break
		}
	}
	if name == "" {
		return contracts.Port{}, false
	}

	flags := port.GetFlags()
	dir := contracts.Output
	if flags&uint64(jack.PortIsInput) != 0 {
		dir = contracts.Input
	}
	var pf contracts.PortFlags
	if flags&uint64(jack.PortIsPhysical) != 0 {
		pf |= contracts.Physical
	}
	if flags&uint64(jack.PortCanMonitor) != 0 {
		pf |= contracts.CanMonitor
	}
	if flags&uint64(jack.PortIsTerminal) != 0 {
		pf |= contracts.Terminal
	}
	return contracts.Port{ClientName: clientName, Name: name, Dir: dir, Flags: pf}, true
}
