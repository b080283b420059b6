// Command psort sorts a generated slice of integers with one of the parallel
// sorts of package TimSort, verifies the result and prints the run statistics.
//
// Usage:
//
//	psort --size 10000000 --workers 8
//	psort --variant merge --threshold 500000 --log-level debug
//	psort --distribution few --debug
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/king54346/parsort/TimSort"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
)

type options struct {
	size            int
	seed            int64
	distribution    string
	variant         string
	workers         int
	threshold       int
	blockSize       int
	arenaMultiplier int
	debug           bool
	logLevel        string
}

var logLevels = map[string]logiface.Level{
	"trace":   logiface.LevelTrace,
	"debug":   logiface.LevelDebug,
	"info":    logiface.LevelInformational,
	"warning": logiface.LevelWarning,
	"err":     logiface.LevelError,
	"off":     logiface.LevelDisabled,
}

type sortFunc func([]int, *TimSort.Config) (TimSort.Stats, error)

var variants = map[string]sortFunc{
	"quick": TimSort.ParallelSort[int],
	"merge": TimSort.ParallelMergeSort[int],
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "psort",
		Short:        "Sort generated integers in parallel and verify the result",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, &opts)
		},
	}
	registerFlags(cmd.Flags(), &opts)
	return cmd
}

func registerFlags(f *pflag.FlagSet, opts *options) {
	f.IntVar(&opts.size, "size", 1_000_000, "number of elements to sort")
	f.Int64Var(&opts.seed, "seed", 42, "seed of the generated input")
	f.StringVar(&opts.distribution, "distribution", "random", "input shape: random, sorted, reversed, equal or few")
	f.StringVar(&opts.variant, "variant", "quick", "sort variant: quick or merge")
	f.IntVar(&opts.workers, "workers", 0, "worker goroutines, 0 for GOMAXPROCS")
	f.IntVar(&opts.threshold, "threshold", 0, "sequential sort threshold, 0 for the default")
	f.IntVar(&opts.blockSize, "block-size", 0, "partition block size, 0 for the default")
	f.IntVar(&opts.arenaMultiplier, "arena-multiplier", 0, "task arena size per estimated task, 0 for the default")
	f.BoolVar(&opts.debug, "debug", false, "verify every partition split")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: trace, debug, info, warning, err or off")
}

func run(cmd *cobra.Command, opts *options) error {
	level, ok := logLevels[opts.logLevel]
	if !ok {
		return fmt.Errorf("psort: unknown log level %q", opts.logLevel)
	}
	sort, ok := variants[opts.variant]
	if !ok {
		return fmt.Errorf("psort: unknown variant %q", opts.variant)
	}
	if opts.size < 0 {
		return fmt.Errorf("psort: negative size %d", opts.size)
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(cmd.ErrOrStderr())),
		stumpy.L.WithLevel(level),
	).Logger()

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug().Log(fmt.Sprintf(format, args...))
	}))
	defer undo()
	if err != nil {
		logger.Warning().Err(err).Log("failed to align GOMAXPROCS with the CPU quota")
	}

	data, err := generate(opts.distribution, opts.size, opts.seed)
	if err != nil {
		return err
	}

	start := time.Now()
	stats, err := sort(data, &TimSort.Config{
		Logger:              logger,
		Workers:             opts.workers,
		SequentialThreshold: opts.threshold,
		BlockSize:           opts.blockSize,
		ArenaMultiplier:     opts.arenaMultiplier,
		Debug:               opts.debug,
	})
	elapsed := time.Since(start)
	if err != nil {
		logger.Err().
			Err(err).
			Str("variant", opts.variant).
			Int("arena_used", stats.ArenaUsed).
			Log("sort failed")
		return err
	}
	if !TimSort.IsSorted(data) {
		return errors.New("psort: output is not sorted")
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"variant=%s size=%d workers=%d elapsed=%s partitions=%d fallbacks=%d helper_joins=%d sorts=%d merges=%d arena=%d/%d\n",
		opts.variant, len(data), stats.Workers, elapsed,
		stats.Partitions, stats.Fallbacks, stats.HelperJoins, stats.Sorts, stats.Merges,
		stats.ArenaUsed, stats.ArenaCap,
	)
	return err
}

func generate(distribution string, n int, seed int64) ([]int, error) {
	r := rand.New(rand.NewSource(seed))
	data := make([]int, n)
	switch distribution {
	case "random":
		for i := range data {
			data[i] = r.Int()
		}
	case "sorted":
		for i := range data {
			data[i] = i
		}
	case "reversed":
		for i := range data {
			data[i] = n - i
		}
	case "equal":
	case "few":
		for i := range data {
			data[i] = r.Intn(4)
		}
	default:
		return nil, fmt.Errorf("psort: unknown distribution %q", distribution)
	}
	return data, nil
}
