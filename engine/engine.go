// Package engine implements parallel_add: spawn N workers that each own
// private CMS/Heavy-Hitters/HLL instances, drain a bounded queue of input
// items by calling a user-supplied function, then reduce the per-worker
// sketches to one of each requested type via a pairwise merge tournament.
//
// The Python original (original_source/sketchnu/helpers.py's parallel_add)
// spawned OS processes and placed sketches in POSIX shared memory because
// its runtime's GIL makes real parallelism require separate processes. Go
// workers are goroutines sharing one address space already, so this
// package uses a worker-pool-over-a-channel shape instead -- the same
// bounded-queue/fan-out idiom the teacher's server uses for its connection
// limiter, generalized from network connections to arbitrary work items.
package engine

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"runtime"
	"sync"

	"sketchkit.dev/sketchkit/cms"
	"sketchkit.dev/sketchkit/heavyhitters"
	"sketchkit.dev/sketchkit/hll"
	"sketchkit.dev/sketchkit/sketcherr"
	"sketchkit.dev/sketchkit/sketchmetrics"
)

// Requested selects which sketch types parallel_add should build, and with
// what construction parameters. A nil field means "do not build this
// type".
type Requested struct {
	CMS *cms.Config
	HH  *heavyhitters.Config
	HLL *hll.Config
}

func (r Requested) build() (*Sketches, error) {
	s := &Sketches{}
	if r.CMS != nil {
		sk, err := cms.New(*r.CMS)
		if err != nil {
			return nil, err
		}
		s.CMS = sk
	}
	if r.HH != nil {
		sk, err := heavyhitters.New(*r.HH)
		if err != nil {
			return nil, err
		}
		s.HH = sk
	}
	if r.HLL != nil {
		sk, err := hll.New(*r.HLL)
		if err != nil {
			return nil, err
		}
		s.HLL = sk
	}
	return s, nil
}

// Sketches bundles one instance of each requested sketch type. Fields are
// passed to process_fn in alphabetical order -- CMS, HH, HLL -- per
// spec.md section 4.5.
type Sketches struct {
	CMS *cms.Sketch
	HH  *heavyhitters.Sketch
	HLL *hll.HLL
}

// Result is the final, merged output of ParallelAdd. Unrequested fields
// are nil.
type Result = Sketches

// Batch is what a YieldingFunc hands the engine: a set of keys (as either
// a map of key to count, or a plain list treated as count 1 each) plus the
// number of stream records the batch represents. Exactly one of Keys or
// KeyList should be set.
type Batch struct {
	Keys     map[string]uint64
	KeyList  [][]byte
	NRecords uint64
}

// ReturningFunc is the first of the two process_fn shapes from spec.md
// section 9: it mutates the sketches it's given directly and returns how
// many stream records it processed.
type ReturningFunc func(item any, s *Sketches) (recordsProcessed uint64, err error)

// YieldingFunc is the second process_fn shape: it does not touch the
// sketches itself, instead calling emit with batches of keys for the
// engine to ingest via each sketch's Update method.
type YieldingFunc func(item any, emit func(Batch) error) error

type callbackMode int

const (
	modeReturns callbackMode = iota
	modeYields
)

// Callback wraps exactly one of the two process_fn shapes, chosen at
// construction -- replacing the Python original's runtime sniffing of the
// user function's return value with an explicit, compile-time choice.
type Callback struct {
	mode      callbackMode
	returning ReturningFunc
	yielding  YieldingFunc
}

// WithReturningFunc builds a Callback around a ReturningFunc.
func WithReturningFunc(fn ReturningFunc) Callback {
	return Callback{mode: modeReturns, returning: fn}
}

// WithYieldingFunc builds a Callback around a YieldingFunc.
func WithYieldingFunc(fn YieldingFunc) Callback {
	return Callback{mode: modeYields, yielding: fn}
}

// Options configures a ParallelAdd call. Zero values are resolved to
// sensible defaults, the way the teacher's server config struct resolves
// flag defaults -- a library has no flag.Parse, so this happens in
// setDefaults instead.
type Options struct {
	NWorkers   int
	QueueDepth int
	Logger     *slog.Logger
	Metrics    sketchmetrics.Collector
}

func (o *Options) setDefaults() {
	if o.NWorkers <= 0 {
		o.NWorkers = max(1, runtime.GOMAXPROCS(0))
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = o.NWorkers * 4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = sketchmetrics.Noop{}
	}
}

// ParallelAdd spawns opts.NWorkers workers, each with a private set of the
// requested sketches, and has them drain items from a bounded queue by
// invoking cb. When items is exhausted and every worker has drained, the
// per-worker sketches are reduced via a merge tournament (see tournament.go)
// and the result is returned.
//
// If any worker's callback returns an error, the session aborts: remaining
// input is discarded, all workers stop, and the first error is returned
// wrapped in sketcherr.ErrWorkerFailure. No partial result is ever
// returned.
func ParallelAdd(ctx context.Context, items iter.Seq[any], req Requested, cb Callback, opts Options) (*Result, error) {
	opts.setDefaults()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan any, opts.QueueDepth)
	go func() {
		defer close(jobs)
		for item := range items {
			select {
			case jobs <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	workers := make([]*Sketches, opts.NWorkers)
	for i := range workers {
		s, err := req.build()
		if err != nil {
			return nil, err
		}
		workers[i] = s
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for i := 0; i < opts.NWorkers; i++ {
		wg.Add(1)
		go func(id int, s *Sketches) {
			defer wg.Done()
			opts.Logger.Debug("engine: worker starting", "worker", id)

			for {
				select {
				case item, ok := <-jobs:
					if !ok {
						opts.Logger.Debug("engine: worker drained", "worker", id)
						return
					}
					if err := processOne(item, s, cb); err != nil {
						errOnce.Do(func() {
							firstErr = fmt.Errorf("engine: worker %d: %w: %v", id, sketcherr.ErrWorkerFailure, err)
							opts.Logger.Error("engine: worker failed, aborting session", "worker", id, "error", err)
							cancel()
						})
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(i, workers[i])
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := tournament(workers, opts)
	if err != nil {
		return nil, err
	}

	reportMetrics(result, opts.Metrics)
	return result, nil
}

func processOne(item any, s *Sketches, cb Callback) error {
	switch cb.mode {
	case modeReturns:
		n, err := cb.returning(item, s)
		if err != nil {
			return err
		}
		addRecords(s, n)
		return nil
	case modeYields:
		return cb.yielding(item, func(b Batch) error {
			return applyBatch(s, b)
		})
	default:
		return fmt.Errorf("engine: Callback has no function configured")
	}
}

func addRecords(s *Sketches, n uint64) {
	if s.CMS != nil {
		s.CMS.UpdateRecords(n)
	}
	if s.HH != nil {
		s.HH.UpdateRecords(n)
	}
	if s.HLL != nil {
		s.HLL.UpdateRecords(n)
	}
}

func applyBatch(s *Sketches, b Batch) error {
	if s.CMS != nil {
		if err := s.CMS.Update(cmsInput(b)); err != nil {
			return err
		}
		s.CMS.UpdateRecords(b.NRecords)
	}
	if s.HH != nil {
		if err := s.HH.Update(hhInput(b)); err != nil {
			return err
		}
		s.HH.UpdateRecords(b.NRecords)
	}
	if s.HLL != nil {
		if err := s.HLL.Update(hllInput(b)); err != nil {
			return err
		}
		s.HLL.UpdateRecords(b.NRecords)
	}
	return nil
}

func cmsInput(b Batch) any {
	if b.Keys != nil {
		return b.Keys
	}
	return b.KeyList
}

func hllInput(b Batch) any {
	if b.Keys != nil {
		return b.Keys
	}
	return b.KeyList
}

func hhInput(b Batch) any {
	if b.Keys != nil {
		m := make(map[string]uint32, len(b.Keys))
		for k, v := range b.Keys {
			m[k] = uint32(v)
		}
		return m
	}
	return b.KeyList
}

func reportMetrics(r *Result, m sketchmetrics.Collector) {
	if r.HLL != nil {
		m.ObserveAdded("hll", r.HLL.NAdded())
		m.ObserveRecords("hll", r.HLL.NRecords())
	}
	if r.CMS != nil {
		kind := cmsKind(r.CMS.Config().Variant)
		m.ObserveAdded(kind, r.CMS.NAdded())
		m.ObserveRecords(kind, r.CMS.NRecords())
		m.ObserveSaturation(kind, r.CMS.Saturated())
	}
	if r.HH != nil {
		m.ObserveAdded("hh", r.HH.NAdded())
		m.ObserveRecords("hh", r.HH.NRecords())
	}
}

func cmsKind(v cms.Variant) string {
	switch v {
	case cms.Linear:
		return "cms-linear"
	case cms.Log16:
		return "cms-log16"
	case cms.Log8:
		return "cms-log8"
	default:
		return "cms"
	}
}

// Slice adapts a plain slice into an iter.Seq[any], for callers that
// already have all their input items in memory rather than behind a
// streaming producer.
func Slice[T any](items []T) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, item := range items {
			if !yield(item) {
				return
			}
		}
	}
}
