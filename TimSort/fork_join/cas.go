package fork_join

import (
	"runtime"
	"sync/atomic"
	"time"
)

// packPair stores two 32-bit halves in one word, so both can move under a
// single CAS.
func packPair(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

func unpackPair(v uint64) (hi, lo uint32) {
	return uint32(v >> 32), uint32(v)
}

// casPair moves the pair at ptr from (oldHi, oldLo) to (newHi, newLo), both
// halves at once. It fails if either half changed.
func casPair(ptr *atomic.Uint64, oldHi, oldLo, newHi, newLo uint32) bool {
	return ptr.CompareAndSwap(packPair(oldHi, oldLo), packPair(newHi, newLo))
}

const (
	backoffSpinLimit = 6
	backoffMaxSleep  = 100 * time.Microsecond
)

// Backoff paces the spin-waits of the scheduler: the first rounds only yield
// the processor, later rounds sleep for an exponentially growing interval
// capped at backoffMaxSleep. The zero value is ready to use.
type Backoff struct {
	n uint
}

// Wait blocks for the current round and advances to the next one.
func (b *Backoff) Wait() {
	if b.n < backoffSpinLimit {
		for i := 0; i < 1<<b.n; i++ {
			runtime.Gosched()
		}
		b.n++
		return
	}
	d := time.Microsecond << (b.n - backoffSpinLimit)
	if d <= 0 || d > backoffMaxSleep {
		d = backoffMaxSleep
	} else {
		b.n++
	}
	time.Sleep(d)
}

// Reset returns to the cheapest round, call after progress was made.
func (b *Backoff) Reset() {
	b.n = 0
}
