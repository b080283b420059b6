package fork_join

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reserveSort(t *testing.T, a *Arena[int], id int) *Task[int] {
	t.Helper()
	task, err := a.Reserve()
	require.NoError(t, err)
	task.InitSort(id, id)
	task.ID = id
	return task
}

func TestTaskStack_LIFO(t *testing.T) {
	a := NewArena[int](3)
	s := NewTaskStack(a)
	require.True(t, s.Empty())

	_, r := s.Pop()
	require.Equal(t, PopEmpty, r)

	for i := range 3 {
		s.Push(reserveSort(t, a, i))
	}
	require.Equal(t, 3, s.Len())

	for i := 2; i >= 0; i-- {
		task, r := s.Pop()
		require.Equal(t, PopRemoved, r)
		require.Equal(t, i, task.ID)
	}
	_, r = s.Pop()
	assert.Equal(t, PopEmpty, r)
	assert.True(t, s.Empty())
	assert.Equal(t, 0, s.Len())
}

func TestTaskStack_PushForeignTaskPanics(t *testing.T) {
	s := NewTaskStack(NewArena[int](1))
	foreign := reserveSort(t, NewArena[int](1), 0)
	assert.Panics(t, func() { s.Push(foreign) })
}

func TestTaskStack_PeekPartitionInParallelPhase(t *testing.T) {
	a := NewArena[int](2)
	s := NewTaskStack(a)

	below := reserveSort(t, a, 7)
	s.Push(below)

	task, err := a.Reserve()
	require.NoError(t, err)
	task.InitPartition(0, 99, 10, 2)
	s.Push(task)

	for _, state := range []PartitionState{StateInitial, StateOwned, StatePivotChosen} {
		task.SetState(state)
		got, r := s.Pop()
		require.Equal(t, PopPeeked, r, "state %v", state)
		require.Same(t, task, got)
		require.Equal(t, 2, s.Len())
	}

	task.SetState(StateParallelFinished)
	got, r := s.Pop()
	require.Equal(t, PopRemoved, r)
	require.Same(t, task, got)

	got, r = s.Pop()
	require.Equal(t, PopRemoved, r)
	require.Same(t, below, got)
}

// A pop that read the head before the same top was popped, another task
// popped, and the top pushed again must not install the stale next link.
func TestTaskStack_ABA(t *testing.T) {
	a := NewArena[int](2)
	s := NewTaskStack(a)
	taskB := reserveSort(t, a, 1)
	taskA := reserveSort(t, a, 0)
	s.Push(taskB)
	s.Push(taskA)

	stale := s.head.Load()

	got, r := s.Pop()
	require.Equal(t, PopRemoved, r)
	require.Same(t, taskA, got)
	got, r = s.Pop()
	require.Equal(t, PopRemoved, r)
	require.Same(t, taskB, got)
	s.Push(taskA)

	// same top index, but the stamp moved on
	_, staleTop := unpackPair(stale)
	_, top := unpackPair(s.head.Load())
	require.Equal(t, staleTop, top)

	_, _, ok := s.tryPop(stale)
	require.False(t, ok, "stale pop succeeded, B would be resurrected")

	got, r = s.Pop()
	require.Equal(t, PopRemoved, r)
	require.Same(t, taskA, got)
	_, r = s.Pop()
	require.Equal(t, PopEmpty, r)
}

func TestTaskStack_concurrentExactlyOnce(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perThread = 2000
		total     = producers * perThread
	)
	for run := 0; run < 20; run++ {
		a := NewArena[int](total)
		s := NewTaskStack(a)
		seen := make([]atomic.Int32, total)
		var (
			popped atomic.Int64
			wg     sync.WaitGroup
		)

		for p := range producers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range perThread {
					task, err := a.Reserve()
					if err != nil {
						panic(err)
					}
					task.InitSort(0, 0)
					task.ID = p*perThread + i
					s.Push(task)
				}
			}()
		}
		for range consumers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var b Backoff
				for popped.Load() < total {
					task, r := s.Pop()
					if r == PopEmpty {
						b.Wait()
						continue
					}
					b.Reset()
					seen[task.ID].Add(1)
					popped.Add(1)
				}
			}()
		}
		wg.Wait()

		require.True(t, s.Empty())
		for id := range seen {
			if n := seen[id].Load(); n != 1 {
				t.Fatalf("run %d: task %d popped %d times", run, id, n)
			}
		}
	}
}
