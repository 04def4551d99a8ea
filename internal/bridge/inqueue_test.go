package bridge

import (
	"bytes"
	"testing"
)

func TestPopReturnsCapturesInArrivalOrder(t *testing.T) {
	var st stats
	q := newIncomingQueue(8, 16, &st)

	q.push([]byte{0x90, 0x24, 0x7F}, 1.0)
	q.push([]byte{0x80, 0x24, 0x7F}, 1.5)

	ev, ok := q.pop()
	if !ok || ev.Data[0] != 0x90 || ev.CapturedAt != 1.0 {
		t.Fatalf("first pop: got %x at %v, want note-on at 1.0", ev.Data, ev.CapturedAt)
	}
	ev, ok = q.pop()
	if !ok || ev.Data[0] != 0x80 || ev.CapturedAt != 1.5 {
		t.Fatalf("second pop: got %x at %v, want note-off at 1.5", ev.Data, ev.CapturedAt)
	}
	if _, ok := q.pop(); ok {
		t.Fatal("pop on a drained queue reported an event")
	}
}

func TestPopOnEmptyQueueReportsNothingPending(t *testing.T) {
	var st stats
	q := newIncomingQueue(4, 16, &st)
	if ev, ok := q.pop(); ok {
		t.Fatalf("empty pop returned %v", ev)
	}
}

func TestOverflowDropsOldestUnread(t *testing.T) {
	var st stats
	q := newIncomingQueue(2, 16, &st)

	q.push([]byte{0x01}, 0.1)
	q.push([]byte{0x02}, 0.2)
	q.push([]byte{0x03}, 0.3)

	ev, ok := q.pop()
	if !ok || ev.Data[0] != 0x02 {
		t.Fatalf("after overflow: got %x, want the oldest survivor 0x02", ev.Data)
	}
	ev, ok = q.pop()
	if !ok || ev.Data[0] != 0x03 {
		t.Fatalf("after overflow: got %x, want 0x03", ev.Data)
	}
	if got := st.snapshot().IncomingDropped; got != 1 {
		t.Fatalf("IncomingDropped: got %d, want 1", got)
	}
}

func TestOversizedCaptureIsDroppedAndCounted(t *testing.T) {
	var st stats
	q := newIncomingQueue(4, 3, &st)

	q.push([]byte{0xF0, 0x01, 0x02, 0x03, 0xF7}, 0)

	if _, ok := q.pop(); ok {
		t.Fatal("oversized capture was queued")
	}
	if got := st.snapshot().OversizedDropped; got != 1 {
		t.Fatalf("OversizedDropped: got %d, want 1", got)
	}
}

func TestContendedPushDropsInsteadOfBlocking(t *testing.T) {
	var st stats
	q := newIncomingQueue(4, 16, &st)

	q.mu.Lock()
	q.push([]byte{0x90}, 0)
	q.mu.Unlock()

	if _, ok := q.pop(); ok {
		t.Fatal("contended push queued an event")
	}
	if got := st.snapshot().IncomingDropped; got != 1 {
		t.Fatalf("IncomingDropped: got %d, want 1", got)
	}
}

func TestPopCopiesOutOfTheSlot(t *testing.T) {
	var st stats
	q := newIncomingQueue(2, 16, &st)

	payload := []byte{0x90, 0x24, 0x7F}
	q.push(payload, 0)
	payload[0] = 0x00 // the push must have copied

	ev, ok := q.pop()
	if !ok || !bytes.Equal(ev.Data, []byte{0x90, 0x24, 0x7F}) {
		t.Fatalf("pop: got %x, want the bytes as captured", ev.Data)
	}

	// Force the slot to be reused and make sure the popped copy survives.
	q.push([]byte{0x80, 0x24, 0x00}, 1)
	q.push([]byte{0xB0, 0x07, 0x40}, 2)
	if !bytes.Equal(ev.Data, []byte{0x90, 0x24, 0x7F}) {
		t.Fatalf("popped event aliased slot storage: %x", ev.Data)
	}
}
