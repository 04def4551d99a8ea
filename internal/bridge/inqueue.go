package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// incomingSlot is one pre-reserved ring entry. The data slice keeps its
// backing array for the queue's lifetime; push rewrites it in place.
type incomingSlot struct {
	data       []byte
	capturedAt float64
}

// incomingQueue is the per-input-port FIFO of events captured by the
// realtime callback, each tagged with the transport time at capture. Order
// is pure arrival order, within and across cycles.
//
// The realtime side pushes with TryLock; a contended push drops the event
// rather than wait. All slot storage is reserved up front, so a push copies
// bytes but never touches the heap. A full ring overwrites the oldest unread
// event, and every loss is counted.
type incomingQueue struct {
	mu       sync.Mutex
	slots    []incomingSlot
	head     int
	count    int
	maxBytes int
	stats    *stats
}

func newIncomingQueue(capacity, maxBytes int, st *stats) *incomingQueue {
	q := &incomingQueue{
		slots:    make([]incomingSlot, capacity),
		maxBytes: maxBytes,
		stats:    st,
	}
	for i := range q.slots {
		q.slots[i].data = make([]byte, 0, maxBytes)
	}
	return q
}

// push records a captured event. Realtime side only.
func (q *incomingQueue) push(data []byte, capturedAt float64) {
	if len(data) > q.maxBytes {
		atomic.AddUint64(&q.stats.oversizedDropped, 1)
		return
	}
	if !q.mu.TryLock() {
		atomic.AddUint64(&q.stats.incomingDropped, 1)
		return
	}
	if q.count == len(q.slots) {
		q.head = (q.head + 1) % len(q.slots)
		q.count--
		atomic.AddUint64(&q.stats.incomingDropped, 1)
	}
	slot := &q.slots[(q.head+q.count)%len(q.slots)]
	slot.data = append(slot.data[:0], data...)
	slot.capturedAt = capturedAt
	q.count++
	q.mu.Unlock()
}

// pop removes and returns the oldest captured event. The second return is
// false when nothing is pending. Control side; single attempt, non-blocking.
func (q *incomingQueue) pop() (contracts.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return contracts.Event{}, false
	}
	slot := &q.slots[q.head]
	ev := contracts.Event{
		Data:       make([]byte, len(slot.data)),
		CapturedAt: slot.capturedAt,
	}
	copy(ev.Data, slot.data)
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	return ev, true
}
