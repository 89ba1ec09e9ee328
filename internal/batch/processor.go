// Package batch implements BatchProcessor (§4.5): chunks a scene set into
// fixed-size batches and runs them under a bounded concurrency cap,
// isolating per-batch failures into per-item results.
package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is B when the caller does not specify one.
	DefaultBatchSize = 10
	minBatchSize     = 1
	maxBatchSize     = 100

	// DefaultConcurrency is C when the caller does not specify one.
	DefaultConcurrency = 3
	minConcurrency     = 1
	maxConcurrency     = 10
)

// Result is the per-item outcome of processing one batch element.
type Result struct {
	Item  any
	Value any
	Err   error
}

// ProgressFunc is invoked once per completed batch (§4.5).
type ProgressFunc func(completedBatches, totalBatches, processedItems, totalItems int)

// CancellationToken is checked before scheduling each new batch (§4.5, §5).
type CancellationToken interface {
	Cancelled() bool
}

// Analyzer processes one batch of items, returning one Result per item in
// the same order. A panic or returned error from Analyzer is captured per
// item rather than aborting the run.
type Analyzer func(ctx context.Context, items []any) []Result

// Options configures Process; zero values fall back to the documented
// defaults and clamps (§4.5).
type Options struct {
	BatchSize   int
	Concurrency int
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	o.BatchSize = clamp(o.BatchSize, minBatchSize, maxBatchSize)

	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	o.Concurrency = clamp(o.Concurrency, minConcurrency, maxConcurrency)
	return o
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Process splits items into contiguous batches of Options.BatchSize,
// schedules them with at most Options.Concurrency running at once, and
// returns one Result per input item in original order (§4.5).
//
// Cancellation is checked before each new batch is scheduled; in-flight
// batches are allowed to finish. Per-item/per-batch panics and errors are
// captured into that item's Result, never aborting the run.
func Process(ctx context.Context, items []any, analyzer Analyzer, progress ProgressFunc, cancel CancellationToken, opts Options) []Result {
	opts = opts.normalized()
	results := make([]Result, len(items))

	batches := chunk(items, opts.BatchSize)
	totalBatches := len(batches)
	totalItems := len(items)
	if totalBatches == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var mu sync.Mutex
	completed := 0
	processed := 0

	for batchIdx, batchItems := range batches {
		if cancel != nil && cancel.Cancelled() {
			break
		}

		batchItems, offset := batchItems, sumLens(batches[:batchIdx])
		g.Go(func() error {
			batchResults := runBatch(gctx, analyzer, batchItems)
			for i, r := range batchResults {
				results[offset+i] = r
			}

			mu.Lock()
			completed++
			processed += len(batchItems)
			c, p := completed, processed
			mu.Unlock()

			if progress != nil {
				progress(c, totalBatches, p, totalItems)
			}
			return nil
		})
	}

	_ = g.Wait() // runBatch never returns an error; panics are captured per-item

	return results
}

// runBatch invokes analyzer, converting a panic into a per-item error
// result instead of propagating it (§4.5: per-batch exceptions captured,
// never abort the run).
func runBatch(ctx context.Context, analyzer Analyzer, items []any) (out []Result) {
	defer func() {
		if r := recover(); r != nil {
			out = make([]Result, len(items))
			for i, item := range items {
				out[i] = Result{Item: item, Err: panicError(r)}
			}
		}
	}()
	return analyzer(ctx, items)
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}

// PanicError wraps a recovered panic value as an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "batch analyzer panicked"
}

func chunk(items []any, size int) [][]any {
	var batches [][]any
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func sumLens(batches [][]any) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}
