package serversim

import (
	"sync"
	"time"
)

// transport is the network's shared clock. Position is derived from a
// wall-clock anchor while rolling, so it advances autonomously between
// cycles; while stopped it holds still at base. Time never goes negative.
type transport struct {
	mu      sync.Mutex
	rolling bool
	base    float64
	anchor  time.Time
}

func (t *transport) posLocked() float64 {
	if !t.rolling {
		return t.base
	}
	return t.base + time.Since(t.anchor).Seconds()
}

func (t *transport) now() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.posLocked()
}

func (t *transport) locate(seconds float64) {
	if seconds < 0 {
		seconds = 0
	}
	t.mu.Lock()
	t.base = seconds
	t.anchor = time.Now()
	t.mu.Unlock()
}

func (t *transport) start() {
	t.mu.Lock()
	if !t.rolling {
		t.anchor = time.Now()
		t.rolling = true
	}
	t.mu.Unlock()
}

func (t *transport) stop() {
	t.mu.Lock()
	if t.rolling {
		t.base = t.posLocked()
		t.rolling = false
	}
	t.mu.Unlock()
}

func (t *transport) isRolling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolling
}
