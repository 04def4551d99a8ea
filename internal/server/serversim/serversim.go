// Package serversim is an in-process stand-in for the external patch server.
// It keeps a patch graph of MIDI ports and directed edges, a shared transport
// clock, and a cycle engine that invokes every active session's process
// callback once per fixed-size cycle, routing events written to outputs onto
// connected inputs with one cycle of latency.
//
// One Network is the process-wide server: every client dialed against it
// shares the same graph and the same transport, mirroring how all clients of
// one daemon see one patch graph. Tests usually build a private Network with
// ManualCycles and drive it with Step.
package serversim

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

const (
	defaultSampleRate   = 48000
	defaultBufferFrames = 128

	// midiTypeName is the byte-stream type every port carries.
	midiTypeName = "8 bit raw midi"

	// maxEventBytes is the server's per-event payload limit.
	maxEventBytes = 512
	// maxEventsPerCycle bounds one port's receive buffer per cycle.
	maxEventsPerCycle = 64
)

var (
	// ErrNetworkClosed is returned when dialing or operating on a closed
	// network.
	ErrNetworkClosed = errors.New("sim network is closed")
	// ErrClientNameInUse is returned when a session name is already taken.
	ErrClientNameInUse = errors.New("client name already in use")
	// ErrEventTooLarge is returned by the cycle writer for payloads over
	// the per-event limit.
	ErrEventTooLarge = errors.New("event exceeds per-event size limit")
	// ErrBadFrameOffset is returned for offsets outside the cycle.
	ErrBadFrameOffset = errors.New("frame offset outside cycle")
)

type edgeKey struct {
	src string
	dst string
}

// bufEvent is an event staged in a port's cycle buffer. seq is a network
// arrival counter used to merge events from multiple sources
// deterministically.
type bufEvent struct {
	frame uint32
	data  []byte
	seq   uint64
}

// simPort is one port in the graph. Input ports double-buffer: events routed
// during cycle N land in pending and become visible in cycle N+1.
type simPort struct {
	qualified string
	owner     *Session
	dir       contracts.Direction
	flags     contracts.PortFlags

	pending []bufEvent
	visible []bufEvent
	raw     []server.RawEvent
}

// QualifiedName implements server.Port.
func (p *simPort) QualifiedName() string { return p.qualified }

// Direction implements server.Port.
func (p *simPort) Direction() contracts.Direction { return p.dir }

func (p *simPort) snapshot() contracts.Port {
	client, name, _ := splitQualified(p.qualified)
	return contracts.Port{ClientName: client, Name: name, Dir: p.dir, Flags: p.flags}
}

func splitQualified(qualified string) (client, name string, ok bool) {
	for i := 0; i < len(qualified); i++ {
		if qualified[i] == ':' {
			return qualified[:i], qualified[i+1:], true
		}
	}
	return "", qualified, false
}

// Network is a simulated patch server instance.
type Network struct {
	cfg contracts.SimConfig

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
	ports    map[string]*simPort
	edges    map[edgeKey]struct{}
	arrival  uint64

	engineOn   bool
	engineStop chan struct{}

	trans transport
}

// New builds a network with defaults applied to the zero fields of cfg.
func New(cfg contracts.SimConfig) *Network {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = defaultBufferFrames
	}
	return &Network{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		ports:    make(map[string]*simPort),
		edges:    make(map[edgeKey]struct{}),
	}
}

var (
	defaultMu  sync.Mutex
	defaultNet *Network
)

// Default returns the process-wide shared network, creating it on first use.
// The first caller's config wins; later configs are ignored.
func Default(cfg *contracts.SimConfig) *Network {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultNet == nil {
		var c contracts.SimConfig
		if cfg != nil {
			c = *cfg
		}
		defaultNet = New(c)
	}
	return defaultNet
}

// Dial opens a named session. Names are unique per network.
func (n *Network) Dial(clientName string) (server.Session, error) {
	if clientName == "" {
		return nil, errors.New("client name must not be empty")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNetworkClosed
	}
	if _, taken := n.sessions[clientName]; taken {
		return nil, fmt.Errorf("%w: %s", ErrClientNameInUse, clientName)
	}
	s := &Session{n: n, name: clientName, ports: make(map[string]*simPort)}
	n.sessions[clientName] = s
	return s, nil
}

// Close shuts the network down: the engine stops and every session closes.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.stopEngineLocked()
	for _, s := range n.sessions {
		s.closed = true
		s.active = false
	}
	n.sessions = make(map[string]*Session)
	n.ports = make(map[string]*simPort)
	n.edges = make(map[edgeKey]struct{})
}

// Step runs n processing cycles synchronously. Intended for ManualCycles
// networks; with the ticker engine running it just adds extra cycles.
func (n *Network) Step(cycles int) {
	for i := 0; i < cycles; i++ {
		n.runCycle()
	}
}

// CycleDuration returns the wall-clock length of one cycle.
func (n *Network) CycleDuration() time.Duration {
	return time.Duration(float64(n.cfg.BufferFrames) / float64(n.cfg.SampleRate) * float64(time.Second))
}

func (n *Network) startEngineLocked() {
	if n.engineOn || n.cfg.ManualCycles || n.closed {
		return
	}
	stop := make(chan struct{})
	n.engineStop = stop
	n.engineOn = true
	period := n.CycleDuration()
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n.runCycle()
			}
		}
	}()
}

func (n *Network) stopEngineLocked() {
	if n.engineOn {
		close(n.engineStop)
		n.engineOn = false
	}
}

func (n *Network) anyActiveLocked() bool {
	for _, s := range n.sessions {
		if s.active {
			return true
		}
	}
	return false
}

func (n *Network) connectLocked(src, dst string) error {
	sp, ok := n.ports[src]
	if !ok {
		return fmt.Errorf("%w: %s", server.ErrNoSuchPort, src)
	}
	dp, ok := n.ports[dst]
	if !ok {
		return fmt.Errorf("%w: %s", server.ErrNoSuchPort, dst)
	}
	if sp.dir != contracts.Output || dp.dir != contracts.Input {
		return fmt.Errorf("%w: %s -> %s", server.ErrReversedConnection, src, dst)
	}
	n.edges[edgeKey{src: src, dst: dst}] = struct{}{}
	return nil
}

func (n *Network) removePortLocked(qualified string) {
	delete(n.ports, qualified)
	for key := range n.edges {
		if key.src == qualified || key.dst == qualified {
			delete(n.edges, key)
		}
	}
}

func (n *Network) matchPortsLocked(q contracts.PortQuery, mine *Session) ([]contracts.Port, error) {
	var nameRe, typeRe *regexp.Regexp
	var err error
	if q.NamePattern != "" {
		if nameRe, err = regexp.Compile(q.NamePattern); err != nil {
			return nil, fmt.Errorf("name pattern: %w", err)
		}
	}
	if q.TypePattern != "" {
		if typeRe, err = regexp.Compile(q.TypePattern); err != nil {
			return nil, fmt.Errorf("type pattern: %w", err)
		}
	}

	names := make([]string, 0, len(n.ports))
	for name := range n.ports {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []contracts.Port
	for _, name := range names {
		p := n.ports[name]
		if nameRe != nil && !nameRe.MatchString(p.qualified) {
			continue
		}
		if typeRe != nil && !typeRe.MatchString(midiTypeName) {
			continue
		}
		if q.Flags != 0 && p.flags&q.Flags != q.Flags {
			continue
		}
		if q.Dir != 0 && p.dir != q.Dir {
			continue
		}
		if q.MineOnly && p.owner != mine {
			continue
		}
		out = append(out, p.snapshot())
	}
	return out, nil
}
