package bridge

import (
	"bytes"
	"testing"
	"time"
)

func drained(evs []outgoingEvent) [][]byte {
	out := make([][]byte, len(evs))
	for i := range evs {
		out[i] = evs[i].data
	}
	return out
}

func TestDrainDeliversByDeadlineNotSubmissionOrder(t *testing.T) {
	var st stats
	q := newOutgoingQueue(8, &st)

	// Submitted out of order: the longer delay first.
	q.enqueue([]byte{0x90, 0x24, 0x7F}, 50*time.Millisecond)
	q.enqueue([]byte{0x80, 0x24, 0x7F}, 10*time.Millisecond)

	evs := q.drainDue(time.Now().Add(time.Second), nil)
	if len(evs) != 2 {
		t.Fatalf("drained %d events, want 2", len(evs))
	}
	if evs[0].data[0] != 0x80 || evs[1].data[0] != 0x90 {
		t.Fatalf("drain order %x, %x; want shorter delay first", evs[0].data[0], evs[1].data[0])
	}
}

func TestDrainEqualDeadlinesKeepSubmissionOrder(t *testing.T) {
	var st stats
	q := newOutgoingQueue(8, &st)

	now := time.Now()
	at := now.Add(5 * time.Millisecond)
	payloads := [][]byte{{0x01}, {0x02}, {0x03}, {0x04}}
	for _, p := range payloads {
		q.insert(p, at, now)
	}

	evs := q.drainDue(at, nil)
	if len(evs) != len(payloads) {
		t.Fatalf("drained %d events, want %d", len(evs), len(payloads))
	}
	for i, p := range payloads {
		if !bytes.Equal(evs[i].data, p) {
			t.Fatalf("event %d: got %x, want %x", i, evs[i].data, p)
		}
	}
}

func TestNegativeDelayClampsToZero(t *testing.T) {
	var st stats
	q := newOutgoingQueue(8, &st)

	q.enqueue([]byte{0xF8}, -5*time.Second)

	evs := q.drainDue(time.Now(), nil)
	if len(evs) != 1 {
		t.Fatalf("drained %d events, want 1 immediately-due event", len(evs))
	}
}

func TestDrainLeavesNotYetDueEvents(t *testing.T) {
	var st stats
	q := newOutgoingQueue(8, &st)

	q.enqueue([]byte{0x90, 0x24, 0x7F}, 0)
	q.enqueue([]byte{0x80, 0x24, 0x7F}, time.Hour)

	evs := q.drainDue(time.Now(), nil)
	if len(evs) != 1 || evs[0].data[0] != 0x90 {
		t.Fatalf("first drain: got %v, want only the note-on", drained(evs))
	}
	if n := q.pending(); n != 1 {
		t.Fatalf("pending after drain: got %d, want 1", n)
	}
}

func TestOverflowEvictsOldestNotYetDue(t *testing.T) {
	var st stats
	q := newOutgoingQueue(4, &st)

	now := time.Now()
	q.insert([]byte{0x01}, now, now)
	q.insert([]byte{0x02}, now, now)
	q.insert([]byte{0x03}, now.Add(time.Hour), now)   // the eviction victim
	q.insert([]byte{0x04}, now.Add(2*time.Hour), now) // submitted later, survives
	q.insert([]byte{0x05}, now, now)                  // overflows the queue

	if got := st.snapshot().OutgoingDropped; got != 1 {
		t.Fatalf("OutgoingDropped: got %d, want 1", got)
	}
	evs := q.drainDue(now, nil)
	if len(evs) != 3 {
		t.Fatalf("drained %d due events, want 3: %v", len(evs), drained(evs))
	}
	if n := q.pending(); n != 1 {
		t.Fatalf("pending: got %d, want only the survivor", n)
	}
	evs = q.drainDue(now.Add(3*time.Hour), nil)
	if len(evs) != 1 || evs[0].data[0] != 0x04 {
		t.Fatalf("survivor: got %v, want the 2h event", drained(evs))
	}
}

func TestOverflowWithEverythingDueDropsHead(t *testing.T) {
	var st stats
	q := newOutgoingQueue(2, &st)

	now := time.Now()
	q.insert([]byte{0x01}, now.Add(-2*time.Millisecond), now)
	q.insert([]byte{0x02}, now.Add(-time.Millisecond), now)
	q.insert([]byte{0x03}, now, now)

	evs := q.drainDue(now, nil)
	if len(evs) != 2 {
		t.Fatalf("drained %d events, want 2", len(evs))
	}
	if evs[0].data[0] != 0x02 || evs[1].data[0] != 0x03 {
		t.Fatalf("got %v, want head dropped and the rest in order", drained(evs))
	}
	if got := st.snapshot().OutgoingDropped; got != 1 {
		t.Fatalf("OutgoingDropped: got %d, want 1", got)
	}
}

func TestDrainWalksAwayFromContendedLock(t *testing.T) {
	var st stats
	q := newOutgoingQueue(8, &st)
	q.enqueue([]byte{0x90}, 0)

	q.mu.Lock()
	evs := q.drainDue(time.Now().Add(time.Second), nil)
	q.mu.Unlock()

	if len(evs) != 0 {
		t.Fatalf("contended drain returned %d events, want none", len(evs))
	}
	if got := st.snapshot().MissedCycles; got != 1 {
		t.Fatalf("MissedCycles: got %d, want 1", got)
	}

	evs = q.drainDue(time.Now().Add(time.Second), nil)
	if len(evs) != 1 {
		t.Fatalf("post-contention drain returned %d events, want the queued one", len(evs))
	}
}

func TestEnqueueCopiesPayload(t *testing.T) {
	var st stats
	q := newOutgoingQueue(8, &st)

	payload := []byte{0x90, 0x24, 0x7F}
	q.enqueue(payload, 0)
	payload[0] = 0x00

	evs := q.drainDue(time.Now(), nil)
	if len(evs) != 1 || evs[0].data[0] != 0x90 {
		t.Fatalf("queued payload mutated with the caller's slice")
	}
}
