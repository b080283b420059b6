package TimSort

import (
	"golang.org/x/exp/constraints"
)

const (
	// runs shorter than this are extended with binary insertion sort
	minMerge = 32
	// initial number of consecutive wins before switching to galloping
	minGallopInit = 7
	// initial size of the merge scratch space, grown on demand
	initialTmpStorageLength = 256
)

// Sort sorts a in place, using TimSort. It is stable, and safe to call from
// many goroutines at once on disjoint slices.
func Sort[T constraints.Ordered](a []T) {
	if len(a) < 2 {
		return
	}
	newTimSort(a).sort(0, len(a))
}

// SortRange sorts the half-open range [index1, index2) of a.
func SortRange[T constraints.Ordered](a []T, index1, index2 int) {
	if index1 < index2 {
		Sort(a[index1:index2])
	}
}

// IsSorted reports whether a is in non-decreasing order.
func IsSorted[T constraints.Ordered](a []T) bool {
	for i := len(a) - 1; i > 0; i-- {
		if a[i] < a[i-1] {
			return false
		}
	}
	return true
}

// timSort holds the state of one sort: the pending run stack, the scratch
// space and the adaptive gallop threshold.
type timSort[T constraints.Ordered] struct {
	a         []T
	tmp       []T
	minGallop int

	// runBase[i] + runLen[i] == runBase[i+1]
	runBase   []int
	runLen    []int
	stackSize int
}

func newTimSort[T constraints.Ordered](a []T) *timSort[T] {
	n := len(a)
	tmpLen := initialTmpStorageLength
	if n < 2*initialTmpStorageLength {
		tmpLen = n >> 1
	}
	// large enough for any input of length n, see listsort.txt
	var stackLen int
	switch {
	case n < 120:
		stackLen = 5
	case n < 1542:
		stackLen = 10
	case n < 119151:
		stackLen = 24
	default:
		stackLen = 49
	}
	return &timSort[T]{
		a:         a,
		tmp:       make([]T, tmpLen),
		minGallop: minGallopInit,
		runBase:   make([]int, stackLen),
		runLen:    make([]int, stackLen),
	}
}

func (ts *timSort[T]) sort(lo, hi int) {
	if lo < 0 || lo > hi || hi > len(ts.a) {
		panic("assert lo >= 0 && lo <= hi && hi <= len(a)")
	}
	nRemaining := hi - lo
	if nRemaining < 2 {
		return
	}

	// small arrays: one run, no merges
	if nRemaining < minMerge {
		initRunLen := countRunAndMakeAscending(ts.a, lo, hi)
		binarySort(ts.a, lo, hi, lo+initRunLen)
		return
	}

	minRun := minRunLength(nRemaining)
	for {
		runLen := countRunAndMakeAscending(ts.a, lo, hi)

		// extend short runs to min(minRun, nRemaining)
		if runLen < minRun {
			force := minRun
			if nRemaining <= minRun {
				force = nRemaining
			}
			binarySort(ts.a, lo, lo+force, lo+runLen)
			runLen = force
		}

		ts.pushRun(lo, runLen)
		ts.mergeCollapse()

		lo += runLen
		nRemaining -= runLen
		if nRemaining == 0 {
			break
		}
	}

	if lo != hi {
		panic("assert lo == hi")
	}
	ts.mergeForceCollapse()
	if ts.stackSize != 1 {
		panic("assert stackSize == 1")
	}
}

func (ts *timSort[T]) pushRun(runBase, runLen int) {
	ts.runBase[ts.stackSize] = runBase
	ts.runLen[ts.stackSize] = runLen
	ts.stackSize++
}

// mergeCollapse merges adjacent runs until the stack invariants hold again:
//
//	runLen[i-3] > runLen[i-2] + runLen[i-1]
//	runLen[i-2] > runLen[i-1]
//
// Both the top three and the top four entries are checked, otherwise the
// invariant can break further down the stack.
func (ts *timSort[T]) mergeCollapse() {
	for ts.stackSize > 1 {
		n := ts.stackSize - 2
		if n > 0 && ts.runLen[n-1] <= ts.runLen[n]+ts.runLen[n+1] ||
			n > 1 && ts.runLen[n-2] <= ts.runLen[n]+ts.runLen[n-1] {
			if ts.runLen[n-1] < ts.runLen[n+1] {
				n--
			}
		} else if ts.runLen[n] > ts.runLen[n+1] {
			break
		}
		ts.mergeAt(n)
	}
}

// mergeForceCollapse merges every remaining run, once the input is consumed.
func (ts *timSort[T]) mergeForceCollapse() {
	for ts.stackSize > 1 {
		n := ts.stackSize - 2
		if n > 0 && ts.runLen[n-1] < ts.runLen[n+1] {
			n--
		}
		ts.mergeAt(n)
	}
}

// mergeAt merges the runs at stack indexes i and i+1, i must be the second or
// third last entry.
func (ts *timSort[T]) mergeAt(i int) {
	if ts.stackSize < 2 {
		panic("assert stackSize >= 2")
	}
	if i < 0 || i != ts.stackSize-2 && i != ts.stackSize-3 {
		panic("assert i >= 0 && (i == stackSize-2 || i == stackSize-3)")
	}

	base1, len1 := ts.runBase[i], ts.runLen[i]
	base2, len2 := ts.runBase[i+1], ts.runLen[i+1]
	if len1 <= 0 || len2 <= 0 || base1+len1 != base2 {
		panic("assert len1 > 0 && len2 > 0 && base1+len1 == base2")
	}

	ts.runLen[i] = len1 + len2
	if i == ts.stackSize-3 {
		ts.runBase[i+1] = ts.runBase[i+2]
		ts.runLen[i+1] = ts.runLen[i+2]
	}
	ts.stackSize--

	// elements of run1 before the first element of run2 are already in place
	k := gallopRight(ts.a[base2], ts.a, base1, len1, 0)
	if k < 0 {
		panic("assert k >= 0")
	}
	base1 += k
	len1 -= k
	if len1 == 0 {
		return
	}

	// same for the elements of run2 after the last element of run1
	len2 = gallopLeft(ts.a[base1+len1-1], ts.a, base2, len2, len2-1)
	if len2 < 0 {
		panic("assert len2 >= 0")
	}
	if len2 == 0 {
		return
	}

	if len1 <= len2 {
		ts.mergeLo(base1, len1, base2, len2)
	} else {
		ts.mergeHi(base1, len1, base2, len2)
	}
}

func (ts *timSort[T]) ensureCapacity(n int) []T {
	if len(ts.tmp) < n {
		ts.tmp = make([]T, n)
	}
	return ts.tmp
}

// mergeLo merges two adjacent runs in place, left to right. len1 must not
// exceed len2; run1 is copied to the scratch space.
func (ts *timSort[T]) mergeLo(base1, len1, base2, len2 int) {
	if len1 <= 0 || len2 <= 0 || base1+len1 != base2 {
		panic("assert len1 > 0 && len2 > 0 && base1+len1 == base2")
	}

	a := ts.a
	tmp := ts.ensureCapacity(len1)
	copy(tmp, a[base1:base1+len1])

	cursor1 := 0     // into tmp
	cursor2 := base2 // into a
	dest := base1    // into a

	a[dest] = a[cursor2]
	dest++
	cursor2++
	len2--
	if len2 == 0 {
		copy(a[dest:], tmp[cursor1:cursor1+len1])
		return
	}
	if len1 == 1 {
		copy(a[dest:], a[cursor2:cursor2+len2])
		a[dest+len2] = tmp[cursor1]
		return
	}

	minGallop := ts.minGallop
outer:
	for {
		count1 := 0 // consecutive wins of run1
		count2 := 0 // consecutive wins of run2

		// one element at a time, until one run starts winning consistently
		for {
			if len1 <= 1 || len2 <= 0 {
				panic("assert len1 > 1 && len2 > 0")
			}
			if a[cursor2] < tmp[cursor1] {
				a[dest] = a[cursor2]
				dest++
				cursor2++
				count2++
				count1 = 0
				len2--
				if len2 == 0 {
					break outer
				}
			} else {
				a[dest] = tmp[cursor1]
				dest++
				cursor1++
				count1++
				count2 = 0
				len1--
				if len1 == 1 {
					break outer
				}
			}
			if (count1 | count2) >= minGallop {
				break
			}
		}

		// galloping, until neither run wins by much
		for {
			if len1 <= 1 || len2 <= 0 {
				panic("assert len1 > 1 && len2 > 0")
			}
			count1 = gallopRight(a[cursor2], tmp, cursor1, len1, 0)
			if count1 != 0 {
				copy(a[dest:], tmp[cursor1:cursor1+count1])
				dest += count1
				cursor1 += count1
				len1 -= count1
				if len1 <= 1 {
					break outer
				}
			}
			a[dest] = a[cursor2]
			dest++
			cursor2++
			len2--
			if len2 == 0 {
				break outer
			}

			count2 = gallopLeft(tmp[cursor1], a, cursor2, len2, 0)
			if count2 != 0 {
				copy(a[dest:], a[cursor2:cursor2+count2])
				dest += count2
				cursor2 += count2
				len2 -= count2
				if len2 == 0 {
					break outer
				}
			}
			a[dest] = tmp[cursor1]
			dest++
			cursor1++
			len1--
			if len1 == 1 {
				break outer
			}
			minGallop--
			if count1 < minGallopInit && count2 < minGallopInit {
				break
			}
		}
		if minGallop < 0 {
			minGallop = 0
		}
		minGallop += 2 // penalty for leaving gallop mode
	}
	if minGallop < 1 {
		minGallop = 1
	}
	ts.minGallop = minGallop

	switch {
	case len1 == 1:
		if len2 <= 0 {
			panic("assert len2 > 0")
		}
		copy(a[dest:], a[cursor2:cursor2+len2])
		a[dest+len2] = tmp[cursor1] // last of run1 goes to the end
	case len1 == 0:
		panic("assert len1 > 0")
	default:
		if len2 != 0 || len1 <= 1 {
			panic("assert len2 == 0 && len1 > 1")
		}
		copy(a[dest:], tmp[cursor1:cursor1+len1])
	}
}

// mergeHi is the mirror of mergeLo, right to left, for len1 >= len2; run2 is
// copied to the scratch space.
func (ts *timSort[T]) mergeHi(base1, len1, base2, len2 int) {
	if len1 <= 0 || len2 <= 0 || base1+len1 != base2 {
		panic("assert len1 > 0 && len2 > 0 && base1+len1 == base2")
	}

	a := ts.a
	tmp := ts.ensureCapacity(len2)
	copy(tmp, a[base2:base2+len2])

	cursor1 := base1 + len1 - 1 // into a
	cursor2 := len2 - 1         // into tmp
	dest := base2 + len2 - 1    // into a

	a[dest] = a[cursor1]
	dest--
	cursor1--
	len1--
	if len1 == 0 {
		copy(a[dest-(len2-1):], tmp[:len2])
		return
	}
	if len2 == 1 {
		dest -= len1
		cursor1 -= len1
		copy(a[dest+1:], a[cursor1+1:cursor1+1+len1])
		a[dest] = tmp[cursor2]
		return
	}

	minGallop := ts.minGallop
outer:
	for {
		count1 := 0
		count2 := 0

		for {
			if len1 <= 0 || len2 <= 1 {
				panic("assert len1 > 0 && len2 > 1")
			}
			if tmp[cursor2] < a[cursor1] {
				a[dest] = a[cursor1]
				dest--
				cursor1--
				count1++
				count2 = 0
				len1--
				if len1 == 0 {
					break outer
				}
			} else {
				a[dest] = tmp[cursor2]
				dest--
				cursor2--
				count2++
				count1 = 0
				len2--
				if len2 == 1 {
					break outer
				}
			}
			if (count1 | count2) >= minGallop {
				break
			}
		}

		for {
			if len1 <= 0 || len2 <= 1 {
				panic("assert len1 > 0 && len2 > 1")
			}
			count1 = len1 - gallopRight(tmp[cursor2], a, base1, len1, len1-1)
			if count1 != 0 {
				dest -= count1
				cursor1 -= count1
				len1 -= count1
				copy(a[dest+1:], a[cursor1+1:cursor1+1+count1])
				if len1 == 0 {
					break outer
				}
			}
			a[dest] = tmp[cursor2]
			dest--
			cursor2--
			len2--
			if len2 == 1 {
				break outer
			}

			count2 = len2 - gallopLeft(a[cursor1], tmp, 0, len2, len2-1)
			if count2 != 0 {
				dest -= count2
				cursor2 -= count2
				len2 -= count2
				copy(a[dest+1:], tmp[cursor2+1:cursor2+1+count2])
				if len2 <= 1 {
					break outer
				}
			}
			a[dest] = a[cursor1]
			dest--
			cursor1--
			len1--
			if len1 == 0 {
				break outer
			}
			minGallop--
			if count1 < minGallopInit && count2 < minGallopInit {
				break
			}
		}
		if minGallop < 0 {
			minGallop = 0
		}
		minGallop += 2
	}
	if minGallop < 1 {
		minGallop = 1
	}
	ts.minGallop = minGallop

	switch {
	case len2 == 1:
		if len1 <= 0 {
			panic("assert len1 > 0")
		}
		dest -= len1
		cursor1 -= len1
		copy(a[dest+1:], a[cursor1+1:cursor1+1+len1])
		a[dest] = tmp[cursor2] // first of run2 goes to the front
	case len2 == 0:
		panic("assert len2 > 0")
	default:
		if len1 != 0 || len2 <= 0 {
			panic("assert len1 == 0 && len2 > 0")
		}
		copy(a[dest-(len2-1):], tmp[:len2])
	}
}

// gallopLeft locates the position at which to insert key into the sorted
// range a[base:base+n]; with equal elements present it returns the leftmost
// position. hint is where the search starts, 0 <= hint < n.
//
// The result k satisfies a[base+k-1] < key <= a[base+k].
func gallopLeft[T constraints.Ordered](key T, a []T, base, n, hint int) int {
	if n <= 0 || hint < 0 || hint >= n {
		panic("assert n > 0 && hint >= 0 && hint < n")
	}
	lastOfs := 0
	ofs := 1
	if key > a[base+hint] {
		// gallop right until a[base+hint+lastOfs] < key <= a[base+hint+ofs]
		maxOfs := n - hint
		for ofs < maxOfs && key > a[base+hint+ofs] {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 {
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs += hint
		ofs += hint
	} else {
		// gallop left until a[base+hint-ofs] < key <= a[base+hint-lastOfs]
		maxOfs := hint + 1
		for ofs < maxOfs && key <= a[base+hint-ofs] {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 {
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs, ofs = hint-ofs, hint-lastOfs
	}
	if -1 > lastOfs || lastOfs >= ofs || ofs > n {
		panic("assert -1 <= lastOfs && lastOfs < ofs && ofs <= n")
	}

	// binary search with a[base+lastOfs-1] < key <= a[base+ofs]
	lastOfs++
	for lastOfs < ofs {
		m := lastOfs + ((ofs - lastOfs) >> 1)
		if key > a[base+m] {
			lastOfs = m + 1
		} else {
			ofs = m
		}
	}
	if lastOfs != ofs {
		panic("assert lastOfs == ofs")
	}
	return ofs
}

// gallopRight is gallopLeft, except that with equal elements present it
// returns the position after the rightmost one.
//
// The result k satisfies a[base+k-1] <= key < a[base+k].
func gallopRight[T constraints.Ordered](key T, a []T, base, n, hint int) int {
	if n <= 0 || hint < 0 || hint >= n {
		panic("assert n > 0 && hint >= 0 && hint < n")
	}
	ofs := 1
	lastOfs := 0
	if key < a[base+hint] {
		// gallop left until a[base+hint-ofs] <= key < a[base+hint-lastOfs]
		maxOfs := hint + 1
		for ofs < maxOfs && key < a[base+hint-ofs] {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 {
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs, ofs = hint-ofs, hint-lastOfs
	} else {
		// gallop right until a[base+hint+lastOfs] <= key < a[base+hint+ofs]
		maxOfs := n - hint
		for ofs < maxOfs && key >= a[base+hint+ofs] {
			lastOfs = ofs
			ofs = (ofs << 1) + 1
			if ofs <= 0 {
				ofs = maxOfs
			}
		}
		if ofs > maxOfs {
			ofs = maxOfs
		}
		lastOfs += hint
		ofs += hint
	}
	if -1 > lastOfs || lastOfs >= ofs || ofs > n {
		panic("assert -1 <= lastOfs && lastOfs < ofs && ofs <= n")
	}

	lastOfs++
	for lastOfs < ofs {
		m := lastOfs + ((ofs - lastOfs) >> 1)
		if key < a[base+m] {
			ofs = m
		} else {
			lastOfs = m + 1
		}
	}
	if lastOfs != ofs {
		panic("assert lastOfs == ofs")
	}
	return ofs
}

// binarySort sorts [lo, hi) with binary insertion sort, assuming [lo, start)
// is already sorted. O(n log n) compares, O(n^2) moves, the best choice for
// short ranges.
func binarySort[T constraints.Ordered](a []T, lo, hi, start int) {
	if lo > start || start > hi {
		panic("assert lo <= start && start <= hi")
	}
	if start == lo {
		start++
	}
	for ; start < hi; start++ {
		pivot := a[start]
		left, right := lo, start
		for left < right {
			mid := int(uint(left+right) >> 1)
			if pivot < a[mid] {
				right = mid
			} else {
				left = mid + 1
			}
		}
		// shift [left, start) one to the right
		switch n := start - left; n {
		case 2:
			a[left+1], a[left+2] = a[left], a[left+1]
		case 1:
			a[left+1] = a[left]
		default:
			copy(a[left+1:], a[left:left+n])
		}
		a[left] = pivot
	}
}

// countRunAndMakeAscending returns the length of the run starting at lo, a
// strictly descending run is reversed in place first.
func countRunAndMakeAscending[T constraints.Ordered](a []T, lo, hi int) int {
	runHi := lo + 1
	if runHi == hi {
		return 1
	}
	if a[runHi] < a[lo] {
		runHi++
		for runHi < hi && a[runHi] < a[runHi-1] {
			runHi++
		}
		reverseRange(a, lo, runHi)
	} else {
		runHi++
		for runHi < hi && a[runHi] >= a[runHi-1] {
			runHi++
		}
	}
	return runHi - lo
}

func reverseRange[T constraints.Ordered](a []T, lo, hi int) {
	hi--
	for lo < hi {
		a[lo], a[hi] = a[hi], a[lo]
		lo++
		hi--
	}
}

// minRunLength returns the minimum acceptable run length for an array of
// length n: n itself below minMerge, minMerge/2 for exact powers of two,
// otherwise k in [minMerge/2, minMerge] with n/k close to, but strictly less
// than, a power of two.
func minRunLength(n int) int {
	r := 0 // 1 if any 1 bits are shifted off
	for n >= minMerge {
		r |= n & 1
		n >>= 1
	}
	return n + r
}
