package serversim

import (
	"sort"

	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// runCycle executes one processing cycle: input buffers flip (events routed
// last cycle become visible, merged in frame-then-arrival order), then every
// active session's callback runs against the cycle view. Sessions run in
// name order so multi-client routing is deterministic.
func (n *Network) runCycle() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	for _, p := range n.ports {
		if p.dir != contracts.Input {
			continue
		}
		p.visible, p.pending = p.pending, p.visible[:0]
		sort.Slice(p.visible, func(i, j int) bool {
			if p.visible[i].frame == p.visible[j].frame {
				return p.visible[i].seq < p.visible[j].seq
			}
			return p.visible[i].frame < p.visible[j].frame
		})
	}

	cy := &cycle{
		n:            n,
		frames:       n.cfg.BufferFrames,
		rate:         n.cfg.SampleRate,
		transportSec: n.trans.now(),
	}

	names := make([]string, 0, len(n.sessions))
	for name, s := range n.sessions {
		if s.active && s.callback != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		n.sessions[name].callback(cy)
	}
}

// cycle is the per-cycle view handed to callbacks. It is only valid while
// runCycle holds the network lock, which also means callbacks must not call
// back into session operations.
type cycle struct {
	n            *Network
	frames       uint32
	rate         uint32
	transportSec float64
}

func (c *cycle) Frames() uint32            { return c.frames }
func (c *cycle) SampleRate() uint32        { return c.rate }
func (c *cycle) TransportSeconds() float64 { return c.transportSec }

// Writer returns the transmit buffer for an output port. Events written to
// it are routed onto every connected input's pending buffer.
func (c *cycle) Writer(p server.Port) server.EventWriter {
	sp, ok := p.(*simPort)
	if !ok || sp.dir != contracts.Output {
		return nil
	}
	if _, known := c.n.ports[sp.qualified]; !known {
		return nil
	}
	return &portWriter{c: c, src: sp}
}

// Events returns an input port's receive buffer for this cycle in merged
// server order.
func (c *cycle) Events(p server.Port) []server.RawEvent {
	sp, ok := p.(*simPort)
	if !ok || sp.dir != contracts.Input {
		return nil
	}
	sp.raw = sp.raw[:0]
	for i := range sp.visible {
		sp.raw = append(sp.raw, server.RawEvent{
			Frame: sp.visible[i].frame,
			Data:  sp.visible[i].data,
		})
	}
	return sp.raw
}

// portWriter routes events written to one output port during one cycle.
type portWriter struct {
	c   *cycle
	src *simPort
}

// WriteEvent validates the event against the server's limits and appends a
// copy to every connected input port's pending buffer.
func (w *portWriter) WriteEvent(frame uint32, data []byte) error {
	if len(data) == 0 || len(data) > maxEventBytes {
		return ErrEventTooLarge
	}
	if frame >= w.c.frames {
		return ErrBadFrameOffset
	}

	n := w.c.n
	n.arrival++
	for key := range n.edges {
		if key.src != w.src.qualified {
			continue
		}
		dst, ok := n.ports[key.dst]
		if !ok || len(dst.pending) >= maxEventsPerCycle {
			continue
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		dst.pending = append(dst.pending, bufEvent{frame: frame, data: buf, seq: n.arrival})
	}
	return nil
}
