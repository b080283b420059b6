package TimSort

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSort_shapes(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, 31, 32, 33, 64, 257, 1000, 70000} {
		for _, shape := range inputShapes {
			a := shape.make(r, n)
			want := sortedCopy(a)
			Sort(a)
			require.Equal(t, want, a, "%s n=%d", shape.name, n)
		}
	}
}

// Long runs interleaved with noise make the merges gallop.
func TestSort_galloping(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	a := make([]int, 0, 50000)
	for len(a) < cap(a) {
		run := 1 + r.Intn(2000)
		base := r.Intn(1000000)
		for i := 0; i < run && len(a) < cap(a); i++ {
			if r.Intn(2) == 0 {
				a = append(a, base+i*3)
			} else {
				a = append(a, base-i*3)
			}
		}
	}
	want := sortedCopy(a)
	Sort(a)
	assert.Equal(t, want, a)
}

func TestSortRange(t *testing.T) {
	a := []int{9, 5, 3, 4, 1, 0}
	SortRange(a, 1, 5)
	assert.Equal(t, []int{9, 1, 3, 4, 5, 0}, a)
	SortRange(a, 3, 3)
	SortRange(a, 4, 2)
	assert.Equal(t, []int{9, 1, 3, 4, 5, 0}, a)
}

func TestIsSorted(t *testing.T) {
	assert.True(t, IsSorted([]int(nil)))
	assert.True(t, IsSorted([]int{1}))
	assert.True(t, IsSorted([]int{1, 1, 2}))
	assert.False(t, IsSorted([]int{2, 1}))
	assert.True(t, IsSorted([]string{"a", "b"}))
}

func TestSort_concurrentDisjoint(t *testing.T) {
	const (
		parts = 8
		size  = 20000
	)
	a := makeRandomInts(parts * size)
	var wg sync.WaitGroup
	for p := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SortRange(a, p*size, (p+1)*size)
		}()
	}
	wg.Wait()
	for p := range parts {
		assert.True(t, IsSorted(a[p*size:(p+1)*size]), "part %d", p)
	}
}

func TestMinRunLength(t *testing.T) {
	assert.Equal(t, 31, minRunLength(31))
	assert.Equal(t, 16, minRunLength(32))
	assert.Equal(t, 17, minRunLength(33))
	assert.Equal(t, 16, minRunLength(1024))
	assert.Equal(t, 32, minRunLength(1000))
}
