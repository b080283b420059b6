package TimSort

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/joeycumines/logiface"
)

const (
	defaultSequentialThreshold = 20000
	defaultBlockSize           = 2048
	defaultArenaMultiplier     = 10
)

// ErrInvalidConfig is returned for a Config with out of range values.
var ErrInvalidConfig = errors.New("TimSort: invalid config")

type (
	// Config models optional configuration, for ParallelSort and
	// ParallelMergeSort. A nil Config uses every default.
	Config struct {
		// Logger receives run level events, nil disables logging.
		Logger *logiface.Logger[logiface.Event]

		// Workers is the fixed number of worker goroutines of a run.
		// **Defaults to runtime.GOMAXPROCS(0), if 0.**
		Workers int

		// SequentialThreshold is the range size at or below which a range is
		// sorted sequentially instead of being split further. For the merge
		// variant it is the target leaf size.
		// **Defaults to 20000, if 0.**
		SequentialThreshold int

		// BlockSize is the number of elements in one claimable block of the
		// cooperative partition.
		// **Defaults to 2048, if 0.**
		BlockSize int

		// ArenaMultiplier scales the estimated task tree size into the task
		// arena capacity of the quicksort variant.
		// **Defaults to 10, if 0.**
		ArenaMultiplier int

		// ArenaCapacity overrides the computed arena capacity, if positive.
		// It must be below math.MaxInt32.
		ArenaCapacity int

		// Debug verifies every partition split, panicking on a violation.
		Debug bool
	}

	// settings is a resolved Config
	settings struct {
		logger          *logiface.Logger[logiface.Event]
		workers         int
		threshold       int
		blockSize       int
		arenaMultiplier int
		arenaCapacity   int
		debug           bool
	}

	// Stats describes a finished (or failed) run.
	Stats struct {
		Workers int
		// ArenaUsed is the number of task slots handed out, of ArenaCap.
		ArenaUsed int
		ArenaCap  int
		// Partitions counts completed partition tasks.
		Partitions int64
		// Fallbacks counts partitions that needed the sequential fallback
		// because the cooperative split left one side empty.
		Fallbacks int64
		// HelperJoins counts workers that helped a partition they did not own.
		HelperJoins int64
		// Sorts counts sequentially sorted leaf ranges.
		Sorts int64
		// Merges counts completed merge sub-tasks.
		Merges int64
	}
)

func (c *Config) resolve() (settings, error) {
	s := settings{
		workers:         runtime.GOMAXPROCS(0),
		threshold:       defaultSequentialThreshold,
		blockSize:       defaultBlockSize,
		arenaMultiplier: defaultArenaMultiplier,
	}
	if c == nil {
		return s, nil
	}
	if c.Workers < 0 || c.SequentialThreshold < 0 || c.BlockSize < 0 ||
		c.ArenaMultiplier < 0 || c.ArenaCapacity < 0 {
		return s, fmt.Errorf("%w: negative value", ErrInvalidConfig)
	}
	if c.BlockSize >= math.MaxInt32 {
		return s, fmt.Errorf("%w: block size %d", ErrInvalidConfig, c.BlockSize)
	}
	if c.ArenaCapacity >= math.MaxInt32 {
		return s, fmt.Errorf("%w: arena capacity %d", ErrInvalidConfig, c.ArenaCapacity)
	}
	s.logger = c.Logger
	s.debug = c.Debug
	s.arenaCapacity = c.ArenaCapacity
	if c.Workers != 0 {
		s.workers = c.Workers
	}
	if c.SequentialThreshold != 0 {
		s.threshold = c.SequentialThreshold
	}
	if c.BlockSize != 0 {
		s.blockSize = c.BlockSize
	}
	if c.ArenaMultiplier != 0 {
		s.arenaMultiplier = c.ArenaMultiplier
	}
	return s, nil
}
