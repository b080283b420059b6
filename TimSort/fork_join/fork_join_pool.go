package fork_join

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
)

// ErrAborted is returned by Worker.SpinUntil when the run stops early
// because another worker failed.
var ErrAborted = errors.New("fork_join: run aborted")

type (
	// ForkJoinPool is the context of one run: the arena, the task stack,
	// the outstanding task counter and a fixed number of workers. A pool
	// runs exactly once.
	ForkJoinPool[T any] struct {
		workers      int
		arena        *Arena[T]
		stack        *TaskStack[T]
		logger       *logiface.Logger[logiface.Event]
		panicHandler func(any)
		_            cpu.CacheLinePad
		outstanding  atomic.Int64
		_            cpu.CacheLinePad
		started      atomic.Bool
	}

	// Handler runs a task obtained by a worker. r is PopRemoved or
	// PopPeeked, see TaskStack.Pop. A non-nil error aborts the run.
	Handler[T any] func(w *Worker[T], t *Task[T], r PopResult) error

	// Worker is handed to every Handler call, it is only valid inside the
	// worker that received it.
	Worker[T any] struct {
		ID      int
		pool    *ForkJoinPool[T]
		ctx     context.Context
		backoff Backoff
	}
)

// NewForkJoinPool allocates the run context for workerCap workers and an
// arena of arenaCap task slots. workerCap <= 0 means runtime.GOMAXPROCS(0).
func NewForkJoinPool[T any](workerCap, arenaCap int) *ForkJoinPool[T] {
	if workerCap <= 0 {
		workerCap = runtime.GOMAXPROCS(0)
	}
	arena := NewArena[T](arenaCap)
	return &ForkJoinPool[T]{
		workers: workerCap,
		arena:   arena,
		stack:   NewTaskStack(arena),
	}
}

// SetPanicHandler installs a callback for panics recovered from workers. The
// run fails with a *PanicError either way.
func (fp *ForkJoinPool[T]) SetPanicHandler(panicHandler func(any)) {
	fp.panicHandler = panicHandler
}

// SetLogger sets the logger, nil disables logging.
func (fp *ForkJoinPool[T]) SetLogger(logger *logiface.Logger[logiface.Event]) {
	fp.logger = logger
}

// Workers is the fixed worker count.
func (fp *ForkJoinPool[T]) Workers() int { return fp.workers }

// Arena returns the task arena of the run.
func (fp *ForkJoinPool[T]) Arena() *Arena[T] { return fp.arena }

// Stack returns the task stack of the run.
func (fp *ForkJoinPool[T]) Stack() *TaskStack[T] { return fp.stack }

// Reserve takes a fresh task slot from the arena.
func (fp *ForkJoinPool[T]) Reserve() (*Task[T], error) {
	return fp.arena.Reserve()
}

// Push makes t available to the workers.
func (fp *ForkJoinPool[T]) Push(t *Task[T]) {
	fp.stack.Push(t)
}

// Fork adjusts the outstanding work counter by delta. Workers keep running
// while it is positive; the run is complete once it drops to zero.
func (fp *ForkJoinPool[T]) Fork(delta int) int64 {
	n := fp.outstanding.Add(int64(delta))
	if n < 0 {
		panic("assert outstanding >= 0")
	}
	return n
}

// Outstanding loads the outstanding work counter.
func (fp *ForkJoinPool[T]) Outstanding() int64 {
	return fp.outstanding.Load()
}

// Run starts the workers, blocks until the outstanding counter reaches zero
// or a worker fails, and returns the first failure.
func (fp *ForkJoinPool[T]) Run(handler Handler[T]) error {
	if handler == nil {
		panic("fork_join: nil handler")
	}
	if !fp.started.CompareAndSwap(false, true) {
		panic("fork_join: pool already ran")
	}
	if fp.outstanding.Load() <= 0 {
		return nil
	}

	start := time.Now()
	fp.logger.Debug().
		Int("workers", fp.workers).
		Int("arena_cap", fp.arena.Cap()).
		Log("fork-join run started")

	g, ctx := errgroup.WithContext(context.Background())
	for id := range fp.workers {
		g.Go(func() error {
			return fp.work(fp.NewWorker(ctx, id), handler)
		})
	}
	err := g.Wait()

	if err != nil {
		fp.logger.Err().
			Err(err).
			Int("arena_used", fp.arena.Used()).
			Int64("outstanding", fp.outstanding.Load()).
			Log("fork-join run failed")
		return err
	}
	fp.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("arena_used", fp.arena.Used()).
		Log("fork-join run finished")
	return nil
}

func (fp *ForkJoinPool[T]) work(w *Worker[T], handler Handler[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Worker: w.ID, Value: r}
			fp.logger.Crit().
				Int("worker", w.ID).
				Str("panic", fmt.Sprint(r)).
				Log("fork-join worker panicked")
			if fp.panicHandler != nil {
				fp.panicHandler(r)
			}
		}
	}()

	var idle Backoff
	for fp.outstanding.Load() > 0 {
		if w.Aborted() {
			return nil
		}
		t, r := fp.stack.Pop()
		if r == PopEmpty {
			idle.Wait()
			continue
		}
		idle.Reset()
		if err := handler(w, t, r); err != nil {
			return err
		}
	}
	return nil
}

// NewWorker returns the handle of worker id, aborted once ctx is done. Run
// creates one per worker; outside Run it lets a caller drive a Handler
// directly.
func (fp *ForkJoinPool[T]) NewWorker(ctx context.Context, id int) *Worker[T] {
	if id < 0 || id >= fp.workers {
		panic(fmt.Sprintf("fork_join: worker id %d out of range [0, %d)", id, fp.workers))
	}
	return &Worker[T]{ID: id, pool: fp, ctx: ctx}
}

// Pool returns the pool the worker belongs to.
func (w *Worker[T]) Pool() *ForkJoinPool[T] { return w.pool }

// Workers is the worker count of the pool.
func (w *Worker[T]) Workers() int { return w.pool.workers }

// Aborted reports whether the run is stopping because a worker failed.
func (w *Worker[T]) Aborted() bool { return w.ctx.Err() != nil }

// SpinUntil waits, yielding and then sleeping, until cond holds. It returns
// ErrAborted if the run is stopping.
func (w *Worker[T]) SpinUntil(cond func() bool) error {
	w.backoff.Reset()
	for !cond() {
		if w.Aborted() {
			return ErrAborted
		}
		w.backoff.Wait()
	}
	return nil
}
