package bridge

import (
	"sync/atomic"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// stats holds the soft-failure counters shared between the realtime callback
// and the control domain. The realtime side only ever increments them
// atomically; Stats reads them without a lock.
type stats struct {
	outgoingDropped  uint64
	incomingDropped  uint64
	oversizedDropped uint64
	missedCycles     uint64
}

func (s *stats) snapshot() contracts.BridgeStats {
	return contracts.BridgeStats{
		OutgoingDropped:  atomic.LoadUint64(&s.outgoingDropped),
		IncomingDropped:  atomic.LoadUint64(&s.incomingDropped),
		OversizedDropped: atomic.LoadUint64(&s.oversizedDropped),
		MissedCycles:     atomic.LoadUint64(&s.missedCycles),
	}
}
