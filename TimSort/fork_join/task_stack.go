package fork_join

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// PopResult describes what TaskStack.Pop handed back.
type PopResult uint8

const (
	// PopEmpty means there was nothing to take.
	PopEmpty PopResult = iota
	// PopRemoved means the task was unlinked and now belongs to the caller.
	PopRemoved
	// PopPeeked means the head is a partition task still in its parallel
	// phase. It was left on the stack so that more workers can join it.
	PopPeeked
)

func (r PopResult) String() string {
	switch r {
	case PopEmpty:
		return "empty"
	case PopRemoved:
		return "removed"
	case PopPeeked:
		return "peeked"
	default:
		return "invalid"
	}
}

// TaskStack is a lock-free LIFO (Treiber stack) of tasks from one Arena.
// Nodes are linked by arena index. The head word packs a push counter with
// the index of the top node, so a CAS against a head that was popped and
// pushed again in between always fails.
type TaskStack[T any] struct {
	arena *Arena[T]
	_     cpu.CacheLinePad
	head  atomic.Uint64 // (stamp, top index + 1), 0 index means empty
	_     cpu.CacheLinePad
}

// NewTaskStack returns an empty stack over arena.
func NewTaskStack[T any](arena *Arena[T]) *TaskStack[T] {
	if arena == nil {
		panic("fork_join: nil arena")
	}
	return &TaskStack[T]{arena: arena}
}

// Push makes t the new top. It never blocks and never fails.
func (s *TaskStack[T]) Push(t *Task[T]) {
	if !s.arena.owns(t) {
		panic("assert task was reserved from the stack's arena")
	}
	n := s.arena.node(t.slot)
	next := uint32(t.slot) + 1
	for {
		old := s.head.Load()
		stamp, top := unpackPair(old)
		n.prev.Store(int32(top) - 1)
		if s.head.CompareAndSwap(old, packPair(stamp+1, next)) {
			return
		}
	}
}

// Pop takes the top task. See PopResult for the three outcomes; only
// PopRemoved transfers ownership of the task.
func (s *TaskStack[T]) Pop() (*Task[T], PopResult) {
	for {
		if t, r, ok := s.tryPop(s.head.Load()); ok {
			return t, r
		}
	}
}

// tryPop is one attempt against the observed head word, ok is false if the
// CAS lost a race.
func (s *TaskStack[T]) tryPop(old uint64) (t *Task[T], r PopResult, ok bool) {
	stamp, top := unpackPair(old)
	if top == 0 {
		return nil, PopEmpty, true
	}
	n := s.arena.node(int32(top - 1))
	if n.task.InParallelPhase() {
		return &n.task, PopPeeked, true
	}
	prev := n.prev.Load()
	if s.head.CompareAndSwap(old, packPair(stamp, uint32(prev+1))) {
		return &n.task, PopRemoved, true
	}
	return nil, PopEmpty, false
}

// Empty reports whether the stack had no task at the time of the call.
func (s *TaskStack[T]) Empty() bool {
	_, top := unpackPair(s.head.Load())
	return top == 0
}

// Len counts the linked tasks. It is only exact while no other goroutine
// uses the stack.
func (s *TaskStack[T]) Len() int {
	_, top := unpackPair(s.head.Load())
	var n int
	for i := int32(top) - 1; i != nilIndex; i = s.arena.node(i).prev.Load() {
		n++
	}
	return n
}
