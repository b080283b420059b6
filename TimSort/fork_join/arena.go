package fork_join

import (
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const nilIndex int32 = -1

// node is an arena slot: the task plus the intrusive stack link.
type node[T any] struct {
	task Task[T]
	prev atomic.Int32
}

// Arena is a fixed-capacity pool of task slots, handed out in order by an
// atomic cursor. Slots are never reused within a run; a new run needs a new
// arena. That rule is what keeps the index-linked TaskStack free of ABA.
type Arena[T any] struct {
	nodes  []node[T]
	_      cpu.CacheLinePad
	cursor atomic.Int64
	_      cpu.CacheLinePad
}

// NewArena allocates capacity task slots up front.
func NewArena[T any](capacity int) *Arena[T] {
	if capacity < 0 || capacity >= math.MaxInt32 {
		panic(fmt.Sprintf("fork_join: invalid arena capacity %d", capacity))
	}
	return &Arena[T]{nodes: make([]node[T], capacity)}
}

// Reserve hands out the next fresh slot. Once the capacity is used up every
// call fails with ErrArenaExhausted; the arena never grows.
func (a *Arena[T]) Reserve() (*Task[T], error) {
	i := a.cursor.Add(1) - 1
	if i >= int64(len(a.nodes)) {
		return nil, fmt.Errorf("%w: capacity %d", ErrArenaExhausted, len(a.nodes))
	}
	n := &a.nodes[i]
	n.task.slot = int32(i)
	n.prev.Store(nilIndex)
	return &n.task, nil
}

// Cap is the fixed number of slots.
func (a *Arena[T]) Cap() int { return len(a.nodes) }

// Used is the number of slots handed out so far.
func (a *Arena[T]) Used() int {
	if n := a.cursor.Load(); n < int64(len(a.nodes)) {
		return int(n)
	}
	return len(a.nodes)
}

func (a *Arena[T]) node(i int32) *node[T] { return &a.nodes[i] }

func (a *Arena[T]) owns(t *Task[T]) bool {
	return t != nil && t.slot >= 0 && int(t.slot) < len(a.nodes) && &a.nodes[t.slot].task == t
}
