package TimSort

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/king54346/parsort/TimSort/fork_join"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// mergeNode is one node of the merge tree. Leaves sort [start, end) of the
// data in place; an inner node merges its two children, [start, middle) and
// [middle, end), from in to out, split into nTasks merge tasks.
type mergeNode[T any] struct {
	start, middle, end int
	in, out            []T
	// outIsData reports whether out is the caller's slice, not the buffer.
	outIsData bool
	nTasks    int
}

type mergeSort[T constraints.Ordered] struct {
	a     []T
	cfg   settings
	pool  *fork_join.ForkJoinPool[T]
	nodes []mergeNode[T]
	// pending child merge tasks (or leaves) per node
	counters []atomic.Int64

	sorts  atomic.Int64
	merges atomic.Int64
}

// ParallelMergeSort sorts a with a fixed tree of leaf sorts and parallel
// merges, using a scratch buffer of len(a). Every merge of a tree node is
// split into as many independent tasks as the node has leaves below it; a
// node starts merging once the last task of its children is done.
func ParallelMergeSort[T constraints.Ordered](a []T, config *Config) (Stats, error) {
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

	leaves := mergeLeafCount(len(a), cfg.threshold)
	capacity := cfg.arenaCapacity
	if capacity == 0 {
		capacity = mergeArenaCapacity(leaves)
	}
	m := &mergeSort[T]{
		a:    a,
		cfg:  cfg,
		pool: fork_join.NewForkJoinPool[T](cfg.workers, capacity),
	}
	m.pool.SetLogger(cfg.logger)
	m.buildTree(leaves)

	start := time.Now()
	err = m.run()
	stats = Stats{
		Workers:   m.pool.Workers(),
		ArenaUsed: m.pool.Arena().Used(),
		ArenaCap:  m.pool.Arena().Cap(),
		Sorts:     m.sorts.Load(),
		Merges:    m.merges.Load(),
	}
	if err != nil {
		return stats, fmt.Errorf("TimSort: parallel merge sort of %d elements: %w", len(a), err)
	}
	if root := &m.nodes[0]; !root.outIsData {
		copy(a, root.out)
	}
	cfg.logger.Info().
		Int("size", len(a)).
		Int("workers", stats.Workers).
		Int("leaves", leaves).
		Int64("merges", stats.Merges).
		Dur("elapsed", time.Since(start)).
		Log("parallel merge sort finished")
	return stats, nil
}

// maxMergeLeaves keeps the task count of the tree within an arena.
const maxMergeLeaves = 1 << 24

// mergeLeafCount picks the power of two (at least 2) whose leaf size is
// closest to threshold.
func mergeLeafCount(n, threshold int) int {
	best, bestDiff := 2, math.MaxInt
	for leaves := 2; leaves <= maxMergeLeaves; leaves <<= 1 {
		size := (n + leaves - 1) / leaves
		diff := size - threshold
		if diff < 0 {
			diff = -diff
		}
		if diff > bestDiff {
			break
		}
		if diff < bestDiff {
			best, bestDiff = leaves, diff
		}
		if size <= 1 {
			break
		}
	}
	return best
}

// mergeArenaCapacity is the exact task count of a tree with leaves leaves:
// the leaf sorts plus, per inner level, one merge task per leaf.
func mergeArenaCapacity(leaves int) int {
	levels := 0
	for l := leaves; l > 1; l >>= 1 {
		levels++
	}
	return leaves * (levels + 1)
}

// buildTree lays out the 2*leaves-1 nodes. Node i has children 2i+2 (lower
// half) and 2i+1 (upper half), so chunk j belongs to leaf node len-1-j.
func (m *mergeSort[T]) buildTree(leaves int) {
	n := len(m.a)
	buf := make([]T, n)
	m.nodes = make([]mergeNode[T], 2*leaves-1)
	m.counters = make([]atomic.Int64, len(m.nodes))

	size := (n + leaves - 1) / leaves
	for j := range leaves {
		node := &m.nodes[len(m.nodes)-1-j]
		node.start = min(j*size, n)
		node.end = min(node.start+size, n)
		node.middle = node.end
		node.in, node.out = buf, m.a
		node.outIsData = true
		node.nTasks = 1
	}
	for i := leaves - 2; i >= 0; i-- {
		node, lower, upper := &m.nodes[i], &m.nodes[2*i+2], &m.nodes[2*i+1]
		node.start, node.middle, node.end = lower.start, lower.end, upper.end
		node.in, node.out = lower.out, lower.in
		node.outIsData = !lower.outIsData
		node.nTasks = 2 * lower.nTasks
		m.counters[i].Store(int64(node.nTasks))
	}
}

func (m *mergeSort[T]) run() error {
	leaves := (len(m.nodes) + 1) / 2
	tasks := make([]*fork_join.Task[T], 0, leaves)
	for id := len(m.nodes) - leaves; id < len(m.nodes); id++ {
		t, err := m.pool.Reserve()
		if err != nil {
			return err
		}
		t.InitSort(m.nodes[id].start, m.nodes[id].end-1)
		t.ID = id
		tasks = append(tasks, t)
	}
	// the run completes when every merge task of the root is done
	m.pool.Fork(m.nodes[0].nTasks)
	for _, t := range tasks {
		m.pool.Push(t)
	}
	return m.pool.Run(m.handle)
}

func (m *mergeSort[T]) handle(_ *fork_join.Worker[T], t *fork_join.Task[T], _ fork_join.PopResult) error {
	switch t.Kind {
	case fork_join.KindSort:
		SortRange(m.a, t.Start, t.End+1)
		m.sorts.Add(1)
	case fork_join.KindMerge:
		node := &m.nodes[t.ID]
		mergeRange(node.in, node.out, node.start, node.middle, node.end, t.Start, t.End)
		m.merges.Add(1)
	default:
		panic(fmt.Sprintf("assert unexpected task kind %v", t.Kind))
	}
	return m.done(t.ID)
}

// done records that one task of node id finished. The last one to finish
// below a parent releases the parent's merge tasks.
func (m *mergeSort[T]) done(id int) error {
	if id == 0 {
		m.pool.Fork(-1)
		return nil
	}
	parent := (id - 1) / 2
	if m.counters[parent].Add(-1) != 0 {
		return nil
	}
	return m.spawnMerges(parent)
}

func (m *mergeSort[T]) spawnMerges(id int) error {
	node := &m.nodes[id]
	size := (node.end - node.start + node.nTasks - 1) / node.nTasks
	tasks := make([]*fork_join.Task[T], node.nTasks)
	for i := range tasks {
		t, err := m.pool.Reserve()
		if err != nil {
			return fmt.Errorf("merge node %d: %w", id, err)
		}
		from := min(node.start+i*size, node.end)
		t.InitMerge(id, from, min(from+size, node.end))
		tasks[i] = t
	}
	for _, t := range tasks {
		m.pool.Push(t)
	}
	m.cfg.logger.Debug().
		Int("node", id).
		Int("start", node.start).
		Int("end", node.end).
		Int("tasks", node.nTasks).
		Log("merge released")
	return nil
}

// mergeRange writes the elements of in[from:to] to their final position in
// out, for the merge of the sorted runs in[start:middle] and in[middle:end].
// Each element finds its position by binary search in the other run, so
// disjoint [from, to) ranges can be merged independently. Ties keep the
// lower run first.
func mergeRange[T constraints.Ordered](in, out []T, start, middle, end, from, to int) {
	lower, upper := in[start:middle], in[middle:end]
	for i := from; i < min(middle, to); i++ {
		pos, _ := slices.BinarySearch(upper, in[i])
		out[i+pos] = in[i]
	}
	for i := max(from, middle); i < to; i++ {
		x := in[i]
		pos, _ := slices.BinarySearchFunc(lower, x, func(e, target T) int {
			if e <= target {
				return -1
			}
			return 1
		})
		out[start+pos+(i-middle)] = x
	}
}
