package batch

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intItems(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = i
	}
	return items
}

func doubleAnalyzer(ctx context.Context, items []any) []Result {
	out := make([]Result, len(items))
	for i, item := range items {
		out[i] = Result{Item: item, Value: item.(int) * 2}
	}
	return out
}

func TestProcess_PreservesOrderAcrossBatches(t *testing.T) {
	results := Process(context.Background(), intItems(25), doubleAnalyzer, nil, nil, Options{BatchSize: 4, Concurrency: 3})

	require.Len(t, results, 25)
	for i, r := range results {
		assert.Equal(t, i*2, r.Value)
		assert.NoError(t, r.Err)
	}
}

func TestProcess_DefaultsAndClamping(t *testing.T) {
	opts := Options{BatchSize: 1000, Concurrency: 0}.normalized()
	assert.Equal(t, maxBatchSize, opts.BatchSize)
	assert.Equal(t, DefaultConcurrency, opts.Concurrency)
}

func TestProcess_PanicCapturedPerItem(t *testing.T) {
	panicAnalyzer := func(ctx context.Context, items []any) []Result {
		panic("boom")
	}
	results := Process(context.Background(), intItems(3), panicAnalyzer, nil, nil, Options{BatchSize: 3})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

type staticCancel struct{ cancelled atomic.Bool }

func (c *staticCancel) Cancelled() bool { return c.cancelled.Load() }

func TestProcess_CancellationStopsSchedulingNewBatches(t *testing.T) {
	cancel := &staticCancel{}
	var batchesRun atomic.Int32

	analyzer := func(ctx context.Context, items []any) []Result {
		batchesRun.Add(1)
		if batchesRun.Load() == 1 {
			cancel.cancelled.Store(true)
		}
		out := make([]Result, len(items))
		for i, item := range items {
			out[i] = Result{Item: item, Value: item}
		}
		return out
	}

	results := Process(context.Background(), intItems(30), analyzer, nil, cancel, Options{BatchSize: 5, Concurrency: 1})
	require.Len(t, results, 30)
	assert.Less(t, int(batchesRun.Load()), 6, "cancellation should stop scheduling new batches")
}

func TestProcess_ProgressCallbackReportsTotals(t *testing.T) {
	var lastCompleted, lastTotalBatches int
	progress := func(completed, totalBatches, processedItems, totalItems int) {
		lastCompleted = completed
		lastTotalBatches = totalBatches
	}

	Process(context.Background(), intItems(10), doubleAnalyzer, progress, nil, Options{BatchSize: 5, Concurrency: 2})
	assert.Equal(t, 2, lastTotalBatches)
	assert.Equal(t, 2, lastCompleted)
}

func TestProcess_EmptyItemsReturnsEmptyResults(t *testing.T) {
	results := Process(context.Background(), nil, doubleAnalyzer, nil, nil, Options{})
	assert.Empty(t, results)
}
