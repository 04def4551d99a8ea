package serversim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// Session is one client connection to a sim network.
type Session struct {
	n        *Network
	name     string
	closed   bool
	active   bool
	callback server.ProcessFunc
	ports    map[string]*simPort
}

// ClientName returns the session's registered name.
func (s *Session) ClientName() string { return s.name }

// RegisterPort adds a MIDI port owned by this session to the graph.
func (s *Session) RegisterPort(name string, dir contracts.Direction) (server.Port, error) {
	if name == "" {
		return nil, errors.New("port name must not be empty")
	}
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return nil, server.ErrSessionClosed
	}
	qualified := s.name + ":" + name
	if _, exists := s.n.ports[qualified]; exists {
		return nil, fmt.Errorf("port %q already exists", qualified)
	}
	p := &simPort{
		qualified: qualified,
		owner:     s,
		dir:       dir,
		pending:   make([]bufEvent, 0, maxEventsPerCycle),
		visible:   make([]bufEvent, 0, maxEventsPerCycle),
		raw:       make([]server.RawEvent, 0, maxEventsPerCycle),
	}
	s.n.ports[qualified] = p
	s.ports[qualified] = p
	return p, nil
}

// UnregisterPort removes a port and every edge touching it.
func (s *Session) UnregisterPort(p server.Port) error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	sp, ok := p.(*simPort)
	if !ok || sp.owner != s {
		return fmt.Errorf("%w: %s", server.ErrNoSuchPort, p.QualifiedName())
	}
	if _, known := s.n.ports[sp.qualified]; !known {
		return fmt.Errorf("%w: %s", server.ErrNoSuchPort, sp.qualified)
	}
	s.n.removePortLocked(sp.qualified)
	delete(s.ports, sp.qualified)
	return nil
}

// Ports lists graph ports matching the query.
func (s *Session) Ports(q contracts.PortQuery) ([]contracts.Port, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return nil, server.ErrSessionClosed
	}
	return s.n.matchPortsLocked(q, s)
}

// Connect adds the edge src -> dst. Idempotent.
func (s *Session) Connect(src, dst string) error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	return s.n.connectLocked(src, dst)
}

// Disconnect removes the edge src -> dst; absent edges are a no-op.
func (s *Session) Disconnect(src, dst string) error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	delete(s.n.edges, edgeKey{src: src, dst: dst})
	return nil
}

// Connections lists the ports on the far side of a port's edges.
func (s *Session) Connections(qualified string) ([]contracts.Port, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return nil, server.ErrSessionClosed
	}
	p, ok := s.n.ports[qualified]
	if !ok {
		return nil, fmt.Errorf("%w: %s", server.ErrNoSuchPort, qualified)
	}

	var peers []string
	for key := range s.n.edges {
		switch {
		case p.dir == contracts.Output && key.src == qualified:
			peers = append(peers, key.dst)
		case p.dir == contracts.Input && key.dst == qualified:
			peers = append(peers, key.src)
		}
	}
	sort.Strings(peers)

	out := make([]contracts.Port, 0, len(peers))
	for _, name := range peers {
		if peer, known := s.n.ports[name]; known {
			out = append(out, peer.snapshot())
		}
	}
	return out, nil
}

// SetProcessCallback installs the session's realtime callback.
func (s *Session) SetProcessCallback(fn server.ProcessFunc) error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	if s.active {
		return errors.New("cannot set process callback while active")
	}
	s.callback = fn
	return nil
}

// Activate starts cycle delivery to this session.
func (s *Session) Activate() error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	s.active = true
	s.n.startEngineLocked()
	return nil
}

// Close deactivates the session and removes its ports from the graph.
// Idempotent.
func (s *Session) Close() error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.active = false
	for qualified := range s.ports {
		s.n.removePortLocked(qualified)
	}
	s.ports = make(map[string]*simPort)
	delete(s.n.sessions, s.name)
	if !s.n.anyActiveLocked() {
		s.n.stopEngineLocked()
	}
	return nil
}

// SampleRate returns the network sample rate.
func (s *Session) SampleRate() uint32 { return s.n.cfg.SampleRate }

// BufferFrames returns the cycle length in frames.
func (s *Session) BufferFrames() uint32 { return s.n.cfg.BufferFrames }

// TransportSeconds returns the shared transport position.
func (s *Session) TransportSeconds() (float64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.n.trans.now(), nil
}

// TransportLocate repositions the shared transport; negatives clamp to zero.
func (s *Session) TransportLocate(seconds float64) error {
	if err := s.check(); err != nil {
		return err
	}
	s.n.trans.locate(seconds)
	return nil
}

// TransportRolling reports whether the shared transport is advancing.
func (s *Session) TransportRolling() (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.n.trans.isRolling(), nil
}

// TransportStart makes the shared transport roll.
func (s *Session) TransportStart() error {
	if err := s.check(); err != nil {
		return err
	}
	s.n.trans.start()
	return nil
}

// TransportStop halts the shared transport.
func (s *Session) TransportStop() error {
	if err := s.check(); err != nil {
		return err
	}
	s.n.trans.stop()
	return nil
}

func (s *Session) check() error {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	if s.closed {
		return server.ErrSessionClosed
	}
	return nil
}
