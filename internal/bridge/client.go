// Package bridge implements the MIDI event bridge between the control domain
// and the patch server's realtime thread. A Client owns the per-port queue
// pair and the process callback that moves events across the timing boundary:
// outgoing events are held until due and written into the port's cycle buffer
// in deadline order, incoming events are copied out of cycle buffers and
// tagged with the transport time at capture.
//
// The two queues are the only state shared between domains. The callback
// reads the port set from an atomic snapshot and touches queues through
// bounded, non-blocking operations only; every failure on that path becomes a
// counter, never a panic, a log write, or a blocked cycle.
package bridge

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

const (
	defaultQueueCapacity = 1024
	defaultMaxEventBytes = 256
)

// portState binds one owned port to its bridge queue. Exactly one of out and
// in is non-nil, matching the port's direction. scratch is the pre-reserved
// drain buffer for output ports, sized to the queue capacity so a drain never
// allocates.
type portState struct {
	ref     server.Port
	port    contracts.Port
	out     *outgoingQueue
	in      *incomingQueue
	scratch []outgoingEvent
}

// Client implements contracts.PatchClient over a server backend.
type Client struct {
	logger        contracts.Logger
	name          string
	dial          server.DialFunc
	queueCapacity int
	maxEventBytes int

	mu    sync.Mutex
	open  bool
	sess  server.Session
	ports map[string]*portState

	// rtPorts holds the []*portState snapshot the realtime callback
	// iterates. Register/UnregisterPort rebuild and store it; the
	// callback only loads.
	rtPorts atomic.Value

	stats stats
}

// NewClient builds a client bound to a backend dialer. The client starts
// closed; Open establishes the server session.
func NewClient(opts *contracts.ClientOptions, dial server.DialFunc) *Client {
	capacity := opts.QueueCapacity
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	maxBytes := opts.MaxEventBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxEventBytes
	}
	c := &Client{
		logger:        opts.Logger,
		name:          opts.ClientName,
		dial:          dial,
		queueCapacity: capacity,
		maxEventBytes: maxBytes,
		ports:         make(map[string]*portState),
	}
	c.rtPorts.Store([]*portState{})
	return c
}

// Open connects to the patch server, installs the realtime callback and
// activates the session. Calling Open on an open client is a no-op.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}

	sess, err := c.dial(c.name)
	if err != nil {
		return fmt.Errorf("opening client %q: %w", c.name, err)
	}
	if err := sess.SetProcessCallback(c.process); err != nil {
		sess.Close()
		return fmt.Errorf("installing process callback: %w", err)
	}
	if err := sess.Activate(); err != nil {
		sess.Close()
		return fmt.Errorf("activating client %q: %w", c.name, err)
	}

	c.sess = sess
	c.ports = make(map[string]*portState)
	c.rtPorts.Store([]*portState{})
	c.open = true
	c.logger.Info("patch client opened", c.logger.Field().String("client", c.name))
	return nil
}

// Close tears down the session. Ports and queues are invalidated and pending
// events discarded. Calling Close on a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil
	}

	c.open = false
	c.rtPorts.Store([]*portState{})
	c.ports = make(map[string]*portState)
	err := c.sess.Close()
	c.sess = nil
	if err != nil {
		c.logger.Warn("error closing server session", c.logger.Field().Error("error", err))
	}
	c.logger.Info("patch client closed", c.logger.Field().String("client", c.name))
	return nil
}

// Name returns the client name.
func (c *Client) Name() string { return c.name }

// IsOpen reports whether the client holds a live server session.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// RegisterPort creates a MIDI port of the given direction and attaches its
// bridge queue.
func (c *Client) RegisterPort(name string, dir contracts.Direction) (contracts.Port, error) {
	if dir != contracts.Input && dir != contracts.Output {
		return contracts.Port{}, contracts.ErrInvalidDirection
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return contracts.Port{}, contracts.ErrClientClosed
	}
	qualified := c.name + ":" + name
	if _, exists := c.ports[qualified]; exists {
		return contracts.Port{}, fmt.Errorf("%w: %s", contracts.ErrPortExists, qualified)
	}

	ref, err := c.sess.RegisterPort(name, dir)
	if err != nil {
		return contracts.Port{}, fmt.Errorf("registering port %q: %w", name, err)
	}

	ps := &portState{
		ref:  ref,
		port: contracts.Port{ClientName: c.name, Name: name, Dir: dir},
	}
	if dir == contracts.Output {
		ps.out = newOutgoingQueue(c.queueCapacity, &c.stats)
		ps.scratch = make([]outgoingEvent, 0, c.queueCapacity)
	} else {
		ps.in = newIncomingQueue(c.queueCapacity, c.maxEventBytes, &c.stats)
	}
	c.ports[qualified] = ps
	c.storeSnapshotLocked()
	c.logger.Debug("port registered",
		c.logger.Field().String("port", qualified),
		c.logger.Field().String("direction", dir.String()))
	return ps.port, nil
}

// UnregisterPort destroys a port owned by this client; its queue and any
// pending events go with it.
func (c *Client) UnregisterPort(p contracts.Port) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return contracts.ErrClientClosed
	}
	ps, ok := c.ports[p.QualifiedName()]
	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownPort, p.QualifiedName())
	}
	if err := c.sess.UnregisterPort(ps.ref); err != nil {
		return fmt.Errorf("unregistering port %q: %w", p.QualifiedName(), err)
	}
	delete(c.ports, p.QualifiedName())
	c.storeSnapshotLocked()
	return nil
}

// Ports lists server ports matching the query as fresh value snapshots.
func (c *Client) Ports(q contracts.PortQuery) ([]contracts.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, contracts.ErrClientClosed
	}
	return c.sess.Ports(q)
}

// Connect adds the edge src -> dst. An already-present edge is a no-op; a
// reversed connection attempt is recorded as a warning and creates nothing.
func (c *Client) Connect(src, dst contracts.Port) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return contracts.ErrClientClosed
	}
	if !src.IsOutput() || !dst.IsInput() {
		c.logger.Warn("ignoring reversed connection attempt",
			c.logger.Field().String("src", src.QualifiedName()),
			c.logger.Field().String("dst", dst.QualifiedName()))
		return nil
	}
	err := c.sess.Connect(src.QualifiedName(), dst.QualifiedName())
	if errors.Is(err, server.ErrReversedConnection) {
		c.logger.Warn("server rejected connection order",
			c.logger.Field().String("src", src.QualifiedName()),
			c.logger.Field().String("dst", dst.QualifiedName()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("connecting %s -> %s: %w", src.QualifiedName(), dst.QualifiedName(), err)
	}
	return nil
}

// Disconnect removes the edge src -> dst; absent edges are a no-op.
func (c *Client) Disconnect(src, dst contracts.Port) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return contracts.ErrClientClosed
	}
	if err := c.sess.Disconnect(src.QualifiedName(), dst.QualifiedName()); err != nil {
		return fmt.Errorf("disconnecting %s -> %s: %w", src.QualifiedName(), dst.QualifiedName(), err)
	}
	return nil
}

// Connections lists the ports on the far side of p's edges.
func (c *Client) Connections(p contracts.Port) ([]contracts.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, contracts.ErrClientClosed
	}
	return c.sess.Connections(p.QualifiedName())
}

// Send schedules payload on an output port owned by this client, delay from
// now. Negative delays clamp to zero; an empty payload fails.
func (c *Client) Send(p contracts.Port, payload []byte, delay time.Duration) error {
	if len(payload) == 0 {
		return contracts.ErrEmptyPayload
	}

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return contracts.ErrClientClosed
	}
	ps, ok := c.ports[p.QualifiedName()]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", contracts.ErrUnknownPort, p.QualifiedName())
	}
	if ps.out == nil {
		return fmt.Errorf("%w: %s", contracts.ErrNotOutputPort, p.QualifiedName())
	}
	ps.out.enqueue(payload, delay)
	return nil
}

// Receive pops the oldest captured event from an input port owned by this
// client. Returns ok=false when nothing is pending.
func (c *Client) Receive(p contracts.Port) (contracts.Event, bool, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return contracts.Event{}, false, contracts.ErrClientClosed
	}
	ps, ok := c.ports[p.QualifiedName()]
	c.mu.Unlock()

	if !ok {
		return contracts.Event{}, false, fmt.Errorf("%w: %s", contracts.ErrUnknownPort, p.QualifiedName())
	}
	if ps.in == nil {
		return contracts.Event{}, false, fmt.Errorf("%w: %s", contracts.ErrNotInputPort, p.QualifiedName())
	}
	ev, ok := ps.in.pop()
	return ev, ok, nil
}

// Transport returns the shared transport clock view.
func (c *Client) Transport() contracts.Transport {
	return &transportView{c: c}
}

// Stats returns a snapshot of the bridge's soft-failure counters.
func (c *Client) Stats() contracts.BridgeStats {
	return c.stats.snapshot()
}

func (c *Client) storeSnapshotLocked() {
	snap := make([]*portState, 0, len(c.ports))
	for _, ps := range c.ports {
		snap = append(snap, ps)
	}
	c.rtPorts.Store(snap)
}

// process is the realtime callback, invoked once per cycle on the server's
// realtime thread. Output queues drain against this cycle's deadline; input
// buffers are captured and stamped with transport time. No branch in here
// blocks, allocates on the heap, or propagates a failure.
func (c *Client) process(cy server.Cycle) {
	ports, _ := c.rtPorts.Load().([]*portState)
	if len(ports) == 0 {
		return
	}

	frames := cy.Frames()
	rate := cy.SampleRate()
	if frames == 0 || rate == 0 {
		return
	}
	cycleStart := time.Now()
	deadline := cycleStart.Add(framesDuration(frames, rate))
	transportAt := cy.TransportSeconds()

	for _, ps := range ports {
		if ps.out != nil {
			w := cy.Writer(ps.ref)
			if w == nil {
				continue
			}
			evs := ps.out.drainDue(deadline, ps.scratch[:0])
			lastOffset := uint32(0)
			for i := range evs {
				offset := frameOffset(evs[i].deliverAt, cycleStart, rate, frames)
				// Keep offsets non-decreasing so drain order survives
				// the server's intra-cycle sort.
				if offset < lastOffset {
					offset = lastOffset
				} else {
					lastOffset = offset
				}
				if err := w.WriteEvent(offset, evs[i].data); err != nil {
					atomic.AddUint64(&c.stats.oversizedDropped, 1)
				}
			}
			continue
		}

		for _, raw := range cy.Events(ps.ref) {
			capturedAt := transportAt + float64(raw.Frame)/float64(rate)
			ps.in.push(raw.Data, capturedAt)
		}
	}
}

func framesDuration(frames, rate uint32) time.Duration {
	return time.Duration(float64(frames) / float64(rate) * float64(time.Second))
}

// frameOffset maps an absolute deadline to an intra-cycle frame offset,
// clamped into [0, frames-1]. Events already due before the cycle started
// land on frame zero.
func frameOffset(deliverAt, cycleStart time.Time, rate, frames uint32) uint32 {
	d := deliverAt.Sub(cycleStart)
	if d <= 0 {
		return 0
	}
	offset := uint32(d.Seconds() * float64(rate))
	if offset >= frames {
		offset = frames - 1
	}
	return offset
}

// transportView adapts the session's transport calls to the Transport
// contract. Every call re-checks the session so a closed client fails hard
// at the point of misuse.
type transportView struct {
	c *Client
}

func (t *transportView) session() (server.Session, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if !t.c.open {
		return nil, contracts.ErrClientClosed
	}
	return t.c.sess, nil
}

// Time returns the current transport position in seconds.
func (t *transportView) Time() (float64, error) {
	sess, err := t.session()
	if err != nil {
		return 0, err
	}
	return sess.TransportSeconds()
}

// SetTime repositions the transport; negative values clamp to zero.
func (t *transportView) SetTime(seconds float64) error {
	sess, err := t.session()
	if err != nil {
		return err
	}
	if seconds < 0 {
		seconds = 0
	}
	return sess.TransportLocate(seconds)
}

// IsRolling reports whether the transport is advancing.
func (t *transportView) IsRolling() (bool, error) {
	sess, err := t.session()
	if err != nil {
		return false, err
	}
	return sess.TransportRolling()
}

// Start makes the transport roll.
func (t *transportView) Start() error {
	sess, err := t.session()
	if err != nil {
		return err
	}
	return sess.TransportStart()
}

// Stop halts the transport at its current position.
func (t *transportView) Stop() error {
	sess, err := t.session()
	if err != nil {
		return err
	}
	return sess.TransportStop()
}
