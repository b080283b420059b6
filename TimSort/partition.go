package TimSort

import (
	"fmt"

	"github.com/king54346/parsort/TimSort/fork_join"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

// pivotSamples is the number of evenly spaced elements the pivot is the
// median of.
const pivotSamples = 20

type side uint8

const (
	sideLeft side = 1 << iota
	sideRight
)

type blockKind uint8

const (
	blockLow   blockKind = iota // every element <= pivot
	blockHigh                   // every element >= pivot
	blockMixed                  // not known
)

// choosePivot returns the lower median of up to pivotSamples evenly spaced
// elements of a[start:end+1]. Ranges shorter than that are sampled fully.
func choosePivot[T constraints.Ordered](a []T, start, end int) T {
	n := end - start + 1
	if n <= 0 {
		panic("assert end >= start")
	}
	k := min(pivotSamples, n)
	if k == 1 {
		return a[start]
	}
	var buf [pivotSamples]T
	samples := buf[:k]
	for i := range samples {
		samples[i] = a[start+i*(n-1)/(k-1)]
	}
	slices.Sort(samples)
	return samples[(k-1)/2]
}

// neutralize walks both blocks, the left one keeping elements <= pivot and
// the right one keeping elements >= pivot, swapping pairs that are on the
// wrong side. It stops once one block is exhausted, and reports which.
func neutralize[T constraints.Ordered](a []T, left, right *fork_join.Block, pivot T) side {
	al, ar := left.Start, left.End
	bl, br := right.Start, right.End
	for {
		for al <= ar && a[al] <= pivot {
			al++
		}
		for bl <= br && a[bl] >= pivot {
			bl++
		}
		if al > ar || bl > br {
			break
		}
		a[al], a[bl] = a[bl], a[al]
		al++
		bl++
	}
	left.Start, right.Start = al, bl

	var s side
	if al > ar {
		s |= sideLeft
	}
	if bl > br {
		s |= sideRight
	}
	return s
}

// partitionRange splits a[lo:hi+1] around pivot, which need not be an
// element of the range. It returns j such that a[lo:j+1] <= pivot and
// a[j+1:hi+1] >= pivot, lo-1 <= j <= hi.
func partitionRange[T constraints.Ordered](a []T, lo, hi int, pivot T) int {
	i, j := lo, hi
	for {
		for i <= j && a[i] < pivot {
			i++
		}
		for i <= j && a[j] > pivot {
			j--
		}
		if i >= j {
			return j
		}
		a[i], a[j] = a[j], a[i]
		i++
		j--
	}
}

// hoarePartition is the classic Hoare scheme around the middle element, moved
// to the front first. For hi > lo the result is in [lo, hi-1], so both sides
// are non-empty whatever the input.
func hoarePartition[T constraints.Ordered](a []T, lo, hi int) (int, T) {
	mid := lo + (hi-lo)/2
	a[lo], a[mid] = a[mid], a[lo]
	pivot := a[lo]
	i, j := lo-1, hi+1
	for {
		for {
			i++
			if !(a[i] < pivot) {
				break
			}
		}
		for {
			j--
			if !(a[j] > pivot) {
				break
			}
		}
		if i >= j {
			return j, pivot
		}
		a[i], a[j] = a[j], a[i]
	}
}

func swapRanges[T any](a []T, i, j, n int) {
	for k := 0; k < n; k++ {
		a[i+k], a[j+k] = a[j+k], a[i+k]
	}
}

// verifySplit panics unless a[start:split+1] <= pivot <= a[split+1:end+1].
func verifySplit[T constraints.Ordered](a []T, start, split, end int, pivot T) {
	if split < start || split >= end {
		panic(fmt.Sprintf("assert start <= split < end: [%d, %d] split %d", start, end, split))
	}
	for i := start; i <= split; i++ {
		if a[i] > pivot {
			panic(fmt.Sprintf("assert a[%d] <= pivot: partition [%d, %d] split %d", i, start, end, split))
		}
	}
	for i := split + 1; i <= end; i++ {
		if a[i] < pivot {
			panic(fmt.Sprintf("assert a[%d] >= pivot: partition [%d, %d] split %d", i, start, end, split))
		}
	}
}

// parallelPhase claims blocks from both ends of t and neutralizes them until
// no block is left to claim. The block it could not finish, if any, is left
// in the worker's leftover slot.
func parallelPhase[T constraints.Ordered](a []T, t *fork_join.Task[T], worker int) {
	left, lok := t.ClaimLeft()
	if !lok {
		t.SetLeftover(worker, -1)
		return
	}
	right, rok := t.ClaimRight()
	if !rok {
		t.SetLeftover(worker, left.Index)
		return
	}
	neutralizeClaimed(a, t, worker, left, right)
}

// neutralizeClaimed continues a worker's share of the parallel phase from a
// pair of blocks it already claimed.
func neutralizeClaimed[T constraints.Ordered](a []T, t *fork_join.Task[T], worker int, left, right fork_join.Block) {
	pivot := t.Pivot()
	lok, rok := true, true
	var nl, nr int
	for lok && rok {
		s := neutralize(a, &left, &right, pivot)
		if s&sideLeft != 0 {
			nl++
			left, lok = t.ClaimLeft()
		}
		if s&sideRight != 0 {
			nr++
			right, rok = t.ClaimRight()
		}
	}

	switch {
	case lok:
		t.SetLeftover(worker, left.Index)
	case rok:
		t.SetLeftover(worker, right.Index)
	default:
		t.SetLeftover(worker, -1)
	}
	t.AddNeutralized(nl, nr)
}

// finalize is the owner's sequential step, once every helper has left. It
// resolves the leftover blocks, moves blocks into [low][mixed][high][tail]
// order, and partitions the small region between low and high blocks. The
// returned split may be degenerate (start-1 or end).
func finalize[T constraints.Ordered](a []T, t *fork_join.Task[T]) int {
	pivot := t.Pivot()
	blocks, bs := t.Blocks(), t.BlockSize()

	kinds := make([]blockKind, blocks)
	boundary := t.ClaimBoundary()
	for i := range kinds {
		if i < boundary {
			kinds[i] = blockLow
		} else {
			kinds[i] = blockHigh
		}
	}

	var leftovers []int
	for _, i := range t.Leftovers() {
		if i >= 0 {
			leftovers = append(leftovers, int(i))
			kinds[i] = blockMixed
		}
	}
	if l, r := t.Neutralized(); l+r+len(leftovers) != blocks {
		panic(fmt.Sprintf("assert neutralized + leftover == blocks: %d + %d + %d != %d", l, r, len(leftovers), blocks))
	}

	// pair leftovers from both ends, at most one stays mixed
	if len(leftovers) > 1 {
		slices.Sort(leftovers)
		i, j := 0, len(leftovers)-1
		lb, rb := t.BlockAt(leftovers[i]), t.BlockAt(leftovers[j])
		for i < j {
			s := neutralize(a, &lb, &rb, pivot)
			if s&sideLeft != 0 {
				kinds[leftovers[i]] = blockLow
				i++
				if i < j {
					lb = t.BlockAt(leftovers[i])
				}
			}
			if s&sideRight != 0 {
				kinds[leftovers[j]] = blockHigh
				j--
				if i < j {
					rb = t.BlockAt(leftovers[j])
				}
			}
		}
	}

	var nLow, mixed int
	for _, k := range kinds {
		switch k {
		case blockLow:
			nLow++
		case blockMixed:
			mixed++
		}
	}
	if mixed > 1 {
		panic("assert mixed blocks <= 1")
	}

	// every misplaced low block has a misplaced counterpart below nLow
	lo, hi := 0, blocks-1
	for {
		for lo < nLow && kinds[lo] == blockLow {
			lo++
		}
		for hi >= nLow && kinds[hi] != blockLow {
			hi--
		}
		if lo >= nLow || hi < nLow {
			break
		}
		swapRanges(a, t.Start+lo*bs, t.Start+hi*bs, bs)
		kinds[lo], kinds[hi] = kinds[hi], kinds[lo]
	}
	if mixed == 1 {
		for m := nLow; m < blocks; m++ {
			if kinds[m] == blockMixed {
				if m != nLow {
					swapRanges(a, t.Start+m*bs, t.Start+nLow*bs, bs)
					kinds[m], kinds[nLow] = kinds[nLow], kinds[m]
				}
				break
			}
		}
	}

	// bring the tail next to the undecided region, high blocks may sit
	// anywhere right of it
	mEnd := t.Start + (nLow+mixed)*bs - 1
	tailStart := t.Start + blocks*bs
	tail := t.End - tailStart + 1
	if tail > 0 && blocks-nLow-mixed > 0 {
		swapRanges(a, mEnd+1, tailStart, tail)
	}

	return partitionRange(a, t.Start+nLow*bs, mEnd+tail, pivot)
}
