package fork_join

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Kind tags the variant held by a Task.
type Kind uint8

const (
	KindInvalid Kind = iota
	// KindSort sorts [Start, End] sequentially.
	KindSort
	// KindPartition splits [Start, End] around a pivot, cooperatively.
	KindPartition
	// KindMerge merges the output range [Start, End) of tree node ID.
	KindMerge
)

func (k Kind) String() string {
	switch k {
	case KindSort:
		return "sort"
	case KindPartition:
		return "partition"
	case KindMerge:
		return "merge"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// PartitionState is the lifecycle of a partition task. States only move
// forward.
type PartitionState int32

const (
	StateInitial PartitionState = iota
	StateOwned
	StatePivotChosen
	StateParallelFinished
	StateFinished
)

func (s PartitionState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateOwned:
		return "owned"
	case StatePivotChosen:
		return "pivot-chosen"
	case StateParallelFinished:
		return "parallel-finished"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Task is one unit of work. It lives in an arena slot for the whole run; the
// fields other than the partition bookkeeping are written once, before the
// task is pushed.
type Task[T any] struct {
	Kind  Kind
	ID    int
	Start int
	End   int

	slot      int32
	partition partition[T]
}

type partition[T any] struct {
	state atomic.Int32
	busy  atomic.Int32
	_     cpu.CacheLinePad
	// packed (next left block, end of unclaimed blocks), see ClaimLeft
	nextBlocks atomic.Uint64
	_          cpu.CacheLinePad

	leftNeutralized  atomic.Int64
	rightNeutralized atomic.Int64

	pivot     T
	blockSize int
	blocks    int
	leftover  []int32
}

// Block is a claimed slice of a partition range. Start is a cursor, it moves
// towards End while the block is neutralized; End is inclusive.
type Block struct {
	Index int
	Start int
	End   int
}

// Exhausted reports whether the cursor passed the end of the block.
func (b Block) Exhausted() bool { return b.Start > b.End }

// Slot returns the arena index of the task.
func (t *Task[T]) Slot() int { return int(t.slot) }

// InitSort turns t into a sort task over [start, end].
func (t *Task[T]) InitSort(start, end int) {
	t.Kind = KindSort
	t.Start = start
	t.End = end
}

// InitMerge turns t into a merge task of tree node id over [from, to).
func (t *Task[T]) InitMerge(id, from, to int) {
	t.Kind = KindMerge
	t.ID = id
	t.Start = from
	t.End = to
}

// InitPartition turns t into a partition task over [start, end], cut into
// (end-start+1)/blockSize claimable blocks. The remainder past the last full
// block is not claimable. workers sizes the leftover slots.
func (t *Task[T]) InitPartition(start, end, blockSize, workers int) {
	if end < start || blockSize <= 0 || workers <= 0 {
		panic("assert end >= start && blockSize > 0 && workers > 0")
	}
	t.Kind = KindPartition
	t.Start = start
	t.End = end

	p := &t.partition
	p.state.Store(int32(StateInitial))
	p.busy.Store(0)
	p.blockSize = blockSize
	p.blocks = (end - start + 1) / blockSize
	p.nextBlocks.Store(packPair(0, uint32(p.blocks)))
	p.leftNeutralized.Store(0)
	p.rightNeutralized.Store(0)
	p.leftover = make([]int32, workers)
	for i := range p.leftover {
		p.leftover[i] = -1
	}
}

// State loads the partition state.
func (t *Task[T]) State() PartitionState {
	return PartitionState(t.partition.state.Load())
}

// SetState publishes a new partition state.
func (t *Task[T]) SetState(s PartitionState) {
	t.partition.state.Store(int32(s))
}

// CompareAndSwapState moves the partition state from old to new.
func (t *Task[T]) CompareAndSwapState(old, new PartitionState) bool {
	return t.partition.state.CompareAndSwap(int32(old), int32(new))
}

// InParallelPhase reports whether t is a partition task other workers may
// still help with.
func (t *Task[T]) InParallelPhase() bool {
	return t.Kind == KindPartition && t.State() < StateParallelFinished
}

// Pivot must only be read after observing StatePivotChosen.
func (t *Task[T]) Pivot() T { return t.partition.pivot }

// SetPivot must only be called by the owner, before StatePivotChosen.
func (t *Task[T]) SetPivot(v T) { t.partition.pivot = v }

// Join registers a helper in the parallel phase.
func (t *Task[T]) Join() { t.partition.busy.Add(1) }

// Leave deregisters a helper.
func (t *Task[T]) Leave() { t.partition.busy.Add(-1) }

// Busy is the number of helpers inside the parallel phase.
func (t *Task[T]) Busy() int { return int(t.partition.busy.Load()) }

// Blocks is the number of claimable blocks.
func (t *Task[T]) Blocks() int { return t.partition.blocks }

// BlockSize is the element count of every claimable block.
func (t *Task[T]) BlockSize() int { return t.partition.blockSize }

// BlockAt returns the (unclaimed-cursor) view of block i.
func (t *Task[T]) BlockAt(i int) Block {
	if i < 0 || i >= t.partition.blocks {
		panic("assert 0 <= block index < blocks")
	}
	start := t.Start + i*t.partition.blockSize
	return Block{Index: i, Start: start, End: start + t.partition.blockSize - 1}
}

// ClaimLeft takes the lowest unclaimed block. Claims from both ends meet in
// the middle, and no block is ever handed out twice.
func (t *Task[T]) ClaimLeft() (Block, bool) {
	p := &t.partition
	for {
		left, end := unpackPair(p.nextBlocks.Load())
		if left >= end {
			return Block{Index: -1}, false
		}
		if casPair(&p.nextBlocks, left, end, left+1, end) {
			return t.BlockAt(int(left)), true
		}
	}
}

// ClaimRight takes the highest unclaimed block.
func (t *Task[T]) ClaimRight() (Block, bool) {
	p := &t.partition
	for {
		left, end := unpackPair(p.nextBlocks.Load())
		if left >= end {
			return Block{Index: -1}, false
		}
		if casPair(&p.nextBlocks, left, end, left, end-1) {
			return t.BlockAt(int(end - 1)), true
		}
	}
}

// ClaimBoundary is the index of the first block claimed from the right.
// Blocks below it were claimed from the left. Only meaningful once every
// block has been claimed.
func (t *Task[T]) ClaimBoundary() int {
	left, _ := unpackPair(t.partition.nextBlocks.Load())
	return int(left)
}

// SetLeftover records the block worker could not finish, -1 for none.
func (t *Task[T]) SetLeftover(worker, index int) {
	t.partition.leftover[worker] = int32(index)
}

// Leftovers returns the per-worker leftover slots. Only the owner may call
// it, after the helpers have left.
func (t *Task[T]) Leftovers() []int32 { return t.partition.leftover }

// AddNeutralized adds to the tallies of fully neutralized blocks.
func (t *Task[T]) AddNeutralized(left, right int) {
	if left != 0 {
		t.partition.leftNeutralized.Add(int64(left))
	}
	if right != 0 {
		t.partition.rightNeutralized.Add(int64(right))
	}
}

// Neutralized loads the tallies of fully neutralized blocks.
func (t *Task[T]) Neutralized() (left, right int) {
	return int(t.partition.leftNeutralized.Load()), int(t.partition.rightNeutralized.Load())
}
