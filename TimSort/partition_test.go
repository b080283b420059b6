package TimSort

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/king54346/parsort/TimSort/fork_join"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireSplit checks a[lo:split+1] <= pivot <= a[split+1:hi+1], allowing
// either side to be empty.
func requireSplit(t *testing.T, a []int, lo, hi, split, pivot int) {
	t.Helper()
	require.GreaterOrEqual(t, split, lo-1)
	require.LessOrEqual(t, split, hi)
	for i := lo; i <= split; i++ {
		require.LessOrEqual(t, a[i], pivot, "index %d split %d", i, split)
	}
	for i := split + 1; i <= hi; i++ {
		require.GreaterOrEqual(t, a[i], pivot, "index %d split %d", i, split)
	}
}

func requirePermutation(t *testing.T, want, got []int) {
	t.Helper()
	w := append([]int(nil), want...)
	g := append([]int(nil), got...)
	sort.Ints(w)
	sort.Ints(g)
	require.Equal(t, w, g)
}

func newPartitionTask(start, end, blockSize, workers, pivot int) *fork_join.Task[int] {
	task := new(fork_join.Task[int])
	task.InitPartition(start, end, blockSize, workers)
	task.CompareAndSwapState(fork_join.StateInitial, fork_join.StateOwned)
	task.SetPivot(pivot)
	task.SetState(fork_join.StatePivotChosen)
	return task
}

func TestChoosePivot(t *testing.T) {
	assert.Equal(t, 3, choosePivot([]int{5, 3, 4, 1, 2}, 0, 4))
	assert.Equal(t, 7, choosePivot([]int{7}, 0, 0))
	assert.Equal(t, 1, choosePivot([]int{9, 2, 1, 9}, 1, 2))

	ascending := make([]int, 40)
	for i := range ascending {
		ascending[i] = i
	}
	// samples 0, 2, 4, ..., 36, 39
	assert.Equal(t, 18, choosePivot(ascending, 0, 39))
}

func TestNeutralize(t *testing.T) {
	a := []int{1, 8, 2, 7, 6, 3, 5, 0}
	left := fork_join.Block{Index: 0, Start: 0, End: 3}
	right := fork_join.Block{Index: 1, Start: 4, End: 7}

	s := neutralize(a, &left, &right, 4)
	assert.Equal(t, sideLeft|sideRight, s)
	assert.True(t, left.Exhausted())
	assert.True(t, right.Exhausted())
	assert.Equal(t, []int{1, 3, 2, 0, 6, 8, 5, 7}, a)
}

func TestNeutralize_oneSideExhausted(t *testing.T) {
	a := []int{1, 8, 2, 7, 6, 3, 5, 4}
	left := fork_join.Block{Index: 0, Start: 0, End: 3}
	right := fork_join.Block{Index: 1, Start: 4, End: 7}

	s := neutralize(a, &left, &right, 4)
	assert.Equal(t, sideRight, s)
	assert.False(t, left.Exhausted())
	assert.Equal(t, 3, left.Start)
	for i := 0; i < left.Start; i++ {
		assert.LessOrEqual(t, a[i], 4)
	}
	for i := 4; i <= 7; i++ {
		assert.GreaterOrEqual(t, a[i], 4)
	}
}

func TestPartitionRange(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 500; run++ {
		n := r.Intn(50)
		a := make([]int, n+2)
		for i := range a {
			a[i] = r.Intn(20)
		}
		in := append([]int(nil), a...)
		pivot := r.Intn(24) - 2
		split := partitionRange(a, 1, n, pivot)
		requireSplit(t, a, 1, n, split, pivot)
		requirePermutation(t, in, a)
		assert.Equal(t, in[0], a[0])
		assert.Equal(t, in[n+1], a[n+1])
	}
}

func TestHoarePartition(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for run := 0; run < 500; run++ {
		n := 2 + r.Intn(60)
		a := make([]int, n)
		values := 1 + r.Intn(4)
		for i := range a {
			a[i] = r.Intn(values)
		}
		in := append([]int(nil), a...)
		split, pivot := hoarePartition(a, 0, n-1)
		require.GreaterOrEqual(t, split, 0)
		require.Less(t, split, n-1)
		requireSplit(t, a, 0, n-1, split, pivot)
		requirePermutation(t, in, a)
	}
}

func TestFinalize_noLeftoverBlocks(t *testing.T) {
	for _, tc := range []struct {
		name  string
		input []int
		split int
	}{
		{"no tail", []int{1, 8, 2, 7, 6, 3, 5, 0}, 3},
		{"tail", []int{1, 8, 2, 7, 6, 3, 5, 0, 9, 2}, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := append([]int(nil), tc.input...)
			task := newPartitionTask(0, len(a)-1, 4, 1, 4)
			parallelPhase(a, task, 0)

			l, r := task.Neutralized()
			require.Equal(t, 1, l)
			require.Equal(t, 1, r)
			require.Equal(t, []int32{-1}, task.Leftovers())

			split := finalize(a, task)
			assert.Equal(t, tc.split, split)
			requireSplit(t, a, 0, len(a)-1, split, 4)
			requirePermutation(t, tc.input, a)
		})
	}
}

func TestFinalize_rangeWithoutBlocks(t *testing.T) {
	in := []int{5, 3, 4, 1, 2}
	a := append([]int(nil), in...)
	task := newPartitionTask(0, 4, 8, 2, 3)
	parallelPhase(a, task, 0)
	parallelPhase(a, task, 1)

	split := finalize(a, task)
	requireSplit(t, a, 0, 4, split, 3)
	requirePermutation(t, in, a)
	assert.Equal(t, 1, split)
}

// Helpers that claimed a pair before the owner drained the rest leave one
// block each behind, the owner resolves them sequentially.
func TestFinalize_leftoversFromInterleavedWorkers(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for run := 0; run < 300; run++ {
		const workers = 4
		bs := 1 + r.Intn(8)
		blocks := 2*workers + r.Intn(20)
		n := blocks*bs + r.Intn(bs)
		a := make([]int, n)
		for i := range a {
			a[i] = r.Intn(1 + r.Intn(3*n))
		}
		in := append([]int(nil), a...)
		pivot := choosePivot(a, 0, n-1)
		task := newPartitionTask(0, n-1, bs, workers, pivot)

		type claim struct{ left, right fork_join.Block }
		claims := make([]claim, workers)
		for w := 1; w < workers; w++ {
			left, ok := task.ClaimLeft()
			require.True(t, ok)
			right, ok := task.ClaimRight()
			require.True(t, ok)
			claims[w] = claim{left, right}
		}
		parallelPhase(a, task, 0)
		for w := 1; w < workers; w++ {
			neutralizeClaimed(a, task, w, claims[w].left, claims[w].right)
		}

		split := finalize(a, task)
		requireSplit(t, a, 0, n-1, split, pivot)
		requirePermutation(t, in, a)
	}
}

func TestVerifySplit(t *testing.T) {
	assert.NotPanics(t, func() { verifySplit([]int{1, 2, 3, 3, 4}, 0, 2, 4, 3) })
	assert.Panics(t, func() { verifySplit([]int{1, 4, 3, 3, 4}, 0, 2, 4, 3) })
	assert.Panics(t, func() { verifySplit([]int{1, 2, 3, 2, 4}, 0, 2, 4, 3) })
	assert.Panics(t, func() { verifySplit([]int{1, 2, 3}, 0, 2, 2, 3) })
}
