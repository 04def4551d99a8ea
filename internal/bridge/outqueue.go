package bridge

import (
	"sync"
	"sync/atomic"
	"time"
)

// outgoingEvent is one scheduled MIDI event awaiting realtime delivery.
type outgoingEvent struct {
	data      []byte
	deliverAt time.Time
	seq       uint64
}

// outgoingQueue is the per-output-port buffer of pending events, ordered by
// (deliverAt, seq). The seq tie-break makes drains deterministic when the
// control domain submits delayed events out of order: equal deadlines come
// out in submission order.
//
// The control side enqueues under the mutex; the realtime side drains with
// TryLock and walks away on contention, so it can never wait on a lock the
// control domain holds. The heap is hand-rolled rather than container/heap
// because heap.Pop boxes every element into an interface value, which would
// allocate on the realtime path.
type outgoingQueue struct {
	mu       sync.Mutex
	events   []outgoingEvent // binary min-heap
	capacity int
	seq      uint64
	stats    *stats
}

func newOutgoingQueue(capacity int, st *stats) *outgoingQueue {
	return &outgoingQueue{
		events:   make([]outgoingEvent, 0, capacity),
		capacity: capacity,
		stats:    st,
	}
}

// enqueue schedules payload for delivery delay from now. Negative delays
// clamp to zero. The payload is copied. When the queue is full the oldest
// not-yet-due event is evicted to make room.
func (q *outgoingQueue) enqueue(payload []byte, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	now := time.Now()
	q.insert(data, now.Add(delay), now)
}

func (q *outgoingQueue) insert(data []byte, deliverAt, now time.Time) {
	q.mu.Lock()
	if len(q.events) >= q.capacity {
		q.evict(now)
	}
	q.seq++
	q.events = append(q.events, outgoingEvent{data: data, deliverAt: deliverAt, seq: q.seq})
	q.siftUp(len(q.events) - 1)
	q.mu.Unlock()
}

// evict drops the earliest-submitted event that is not yet due; if every
// queued event is already due, the head (earliest deadline) goes instead.
// Caller holds q.mu.
func (q *outgoingQueue) evict(now time.Time) {
	victim := -1
	for i := range q.events {
		if !q.events[i].deliverAt.After(now) {
			continue
		}
		if victim < 0 || q.events[i].seq < q.events[victim].seq {
			victim = i
		}
	}
	if victim < 0 {
		victim = 0
	}
	q.remove(victim)
	atomic.AddUint64(&q.stats.outgoingDropped, 1)
}

// drainDue removes and appends to dst, in delivery order, every event whose
// deadline is at or before deadline. Realtime side: on lock contention it
// returns immediately and the events ride the next cycle. dst must have
// capacity for the whole queue so the append never grows it.
func (q *outgoingQueue) drainDue(deadline time.Time, dst []outgoingEvent) []outgoingEvent {
	if !q.mu.TryLock() {
		atomic.AddUint64(&q.stats.missedCycles, 1)
		return dst
	}
	for len(q.events) > 0 && !q.events[0].deliverAt.After(deadline) {
		dst = append(dst, q.events[0])
		q.remove(0)
	}
	q.mu.Unlock()
	return dst
}

// pending returns the number of queued events. Control side only.
func (q *outgoingQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *outgoingQueue) less(i, j int) bool {
	a, b := &q.events[i], &q.events[j]
	if a.deliverAt.Equal(b.deliverAt) {
		return a.seq < b.seq
	}
	return a.deliverAt.Before(b.deliverAt)
}

func (q *outgoingQueue) remove(i int) {
	last := len(q.events) - 1
	q.events[i] = q.events[last]
	q.events[last] = outgoingEvent{}
	q.events = q.events[:last]
	if i < last {
		q.siftDown(i)
		q.siftUp(i)
	}
}

func (q *outgoingQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			return
		}
		q.events[i], q.events[parent] = q.events[parent], q.events[i]
		i = parent
	}
}

func (q *outgoingQueue) siftDown(i int) {
	n := len(q.events)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && q.less(left, smallest) {
			smallest = left
		}
		if right < n && q.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			return
		}
		q.events[i], q.events[smallest] = q.events[smallest], q.events[i]
		i = smallest
	}
}
