package TimSort

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/king54346/parsort/TimSort/fork_join"

	"golang.org/x/exp/constraints"
)

type quickSort[T constraints.Ordered] struct {
	a    []T
	cfg  settings
	pool *fork_join.ForkJoinPool[T]

	partitions  atomic.Int64
	fallbacks   atomic.Int64
	helperJoins atomic.Int64
	sorts       atomic.Int64
}

// ParallelSort sorts a in place with a task tree of cooperative partitions.
// Ranges at or below the sequential threshold are sorted with Sort. On error
// the slice is still a permutation of its input, but not necessarily sorted.
func ParallelSort[T constraints.Ordered](a []T, config *Config) (Stats, error) {
	cfg, err := config.resolve()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Workers: cfg.workers}
	if len(a) <= cfg.threshold {
		Sort(a)
		stats.Sorts = 1
		return stats, nil
	}

	capacity := cfg.arenaCapacity
	if capacity == 0 {
		capacity = quickArenaCapacity(len(a), cfg.threshold, cfg.arenaMultiplier)
	}
	q := &quickSort[T]{
		a:    a,
		cfg:  cfg,
		pool: fork_join.NewForkJoinPool[T](cfg.workers, capacity),
	}
	q.pool.SetLogger(cfg.logger)

	start := time.Now()
	err = q.run()
	stats = q.stats()
	if err != nil {
		return stats, fmt.Errorf("TimSort: parallel sort of %d elements: %w", len(a), err)
	}
	cfg.logger.Info().
		Int("size", len(a)).
		Int("workers", stats.Workers).
		Int64("partitions", stats.Partitions).
		Int64("sorts", stats.Sorts).
		Int64("helper_joins", stats.HelperJoins).
		Dur("elapsed", time.Since(start)).
		Log("parallel sort finished")
	return stats, nil
}

// quickArenaCapacity estimates the node count of a balanced task tree that
// halves ranges down to threshold, scaled by multiplier. A tree over n
// elements never has more than 2n-1 nodes.
func quickArenaCapacity(n, threshold, multiplier int) int {
	nodes := 1
	for size := n; size > threshold && nodes < n; size = (size + 1) / 2 {
		nodes = 2*nodes + 1
	}
	limit := min(2*n-1, math.MaxInt32-1)
	if capacity := nodes * multiplier; capacity/multiplier == nodes && capacity < limit {
		return capacity
	}
	return limit
}

func (q *quickSort[T]) run() error {
	root, err := q.newTask(0, len(q.a)-1)
	if err != nil {
		return err
	}
	q.pool.Fork(1)
	q.pool.Push(root)
	return q.pool.Run(q.handle)
}

func (q *quickSort[T]) stats() Stats {
	return Stats{
		Workers:     q.pool.Workers(),
		ArenaUsed:   q.pool.Arena().Used(),
		ArenaCap:    q.pool.Arena().Cap(),
		Partitions:  q.partitions.Load(),
		Fallbacks:   q.fallbacks.Load(),
		HelperJoins: q.helperJoins.Load(),
		Sorts:       q.sorts.Load(),
	}
}

func (q *quickSort[T]) newTask(start, end int) (*fork_join.Task[T], error) {
	t, err := q.pool.Reserve()
	if err != nil {
		return nil, err
	}
	if end-start+1 <= q.cfg.threshold {
		t.InitSort(start, end)
	} else {
		t.InitPartition(start, end, q.cfg.blockSize, q.pool.Workers())
	}
	return t, nil
}

func (q *quickSort[T]) handle(w *fork_join.Worker[T], t *fork_join.Task[T], _ fork_join.PopResult) error {
	switch t.Kind {
	case fork_join.KindSort:
		SortRange(q.a, t.Start, t.End+1)
		q.sorts.Add(1)
		q.pool.Fork(-1)
		return nil
	case fork_join.KindPartition:
		return q.partition(w, t)
	default:
		panic(fmt.Sprintf("assert unexpected task kind %v", t.Kind))
	}
}

// partition runs w's share of t. The first worker to get there owns the task,
// every other one helps with the parallel phase and returns. A task already
// past its parallel phase is only popped and dropped.
func (q *quickSort[T]) partition(w *fork_join.Worker[T], t *fork_join.Task[T]) error {
	if t.State() >= fork_join.StateParallelFinished {
		return nil
	}
	if !t.CompareAndSwapState(fork_join.StateInitial, fork_join.StateOwned) {
		q.help(w, t)
		return nil
	}
	return q.own(w, t)
}

// help joins the parallel phase of a task owned by another worker. A helper
// that arrives after the phase ended leaves without touching the task.
func (q *quickSort[T]) help(w *fork_join.Worker[T], t *fork_join.Task[T]) {
	t.Join()
	defer t.Leave()
	if t.State() >= fork_join.StateParallelFinished {
		return
	}
	if err := w.SpinUntil(func() bool { return t.State() >= fork_join.StatePivotChosen }); err != nil {
		return
	}
	q.helperJoins.Add(1)
	parallelPhase(q.a, t, w.ID)
	t.CompareAndSwapState(fork_join.StatePivotChosen, fork_join.StateParallelFinished)
}

// own is the owner's side of t, from pivot choice to the pushed children.
func (q *quickSort[T]) own(w *fork_join.Worker[T], t *fork_join.Task[T]) error {
	t.SetPivot(choosePivot(q.a, t.Start, t.End))
	t.SetState(fork_join.StatePivotChosen)
	parallelPhase(q.a, t, w.ID)
	t.CompareAndSwapState(fork_join.StatePivotChosen, fork_join.StateParallelFinished)
	return q.finish(w, t)
}

// finish waits out the helpers still inside the parallel phase, then splits
// the range sequentially and pushes both children.
func (q *quickSort[T]) finish(w *fork_join.Worker[T], t *fork_join.Task[T]) error {
	if err := w.SpinUntil(func() bool { return t.Busy() == 0 }); err != nil {
		return nil
	}

	pivot := t.Pivot()
	split := finalize(q.a, t)
	if split < t.Start || split >= t.End {
		split, pivot = hoarePartition(q.a, t.Start, t.End)
		q.fallbacks.Add(1)
	}
	if q.cfg.debug {
		verifySplit(q.a, t.Start, split, t.End, pivot)
	}

	left, err := q.newTask(t.Start, split)
	if err != nil {
		return fmt.Errorf("partition [%d, %d]: %w", t.Start, t.End, err)
	}
	right, err := q.newTask(split+1, t.End)
	if err != nil {
		return fmt.Errorf("partition [%d, %d]: %w", t.Start, t.End, err)
	}

	t.SetState(fork_join.StateFinished)
	q.partitions.Add(1)
	q.cfg.logger.Debug().
		Int("start", t.Start).
		Int("end", t.End).
		Int("split", split).
		Int("blocks", t.Blocks()).
		Log("partition finished")

	// the parent's unit of outstanding work turns into two
	q.pool.Fork(1)
	q.pool.Push(left)
	q.pool.Push(right)
	return nil
}
