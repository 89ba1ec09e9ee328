package aiclient

import (
	"sync"
	"sync/atomic"

	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// CostAccumulator tracks cumulative prompt/completion tokens and USD cost,
// tagged by logical operation and by model (§4.4). Token/cost counters use
// atomic increments per §5; readers see an eventually-consistent total.
type CostAccumulator struct {
	promptTokens     atomic.Int64
	completionTokens atomic.Int64

	mu          sync.Mutex
	costNanos   int64 // USD cost stored as integer nano-dollars to keep increments exact
	byOperation map[string]int64
	byModel     map[string]int64
}

// nanosPerUSD converts between USD and the integer nano-dollar unit the
// accumulator stores, fine enough that a single small call is not rounded
// to zero.
const nanosPerUSD = 1e9

// NewCostAccumulator constructs an empty accumulator.
func NewCostAccumulator() *CostAccumulator {
	return &CostAccumulator{
		byOperation: make(map[string]int64),
		byModel:     make(map[string]int64),
	}
}

// Record adds one completion's usage to the accumulator, computing cost
// from pricing (falling back to zero cost for an unknown model).
func (c *CostAccumulator) Record(modelName, operation string, promptTokens, completionTokens int64, pricing map[string]ModelPricing) {
	c.promptTokens.Add(promptTokens)
	c.completionTokens.Add(completionTokens)

	price := pricing[modelName]
	costNanos := int64((float64(promptTokens)/1_000_000*price.InputCostPerMillion +
		float64(completionTokens)/1_000_000*price.OutputCostPerMillion) * nanosPerUSD)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.costNanos += costNanos
	c.byOperation[operation] += costNanos
	c.byModel[modelName] += costNanos
}

// Snapshot returns a point-in-time copy suitable for embedding in plan
// metadata (§4.6 step 6-7).
func (c *CostAccumulator) Snapshot() model.AICostSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byOp := make(map[string]float64, len(c.byOperation))
	for k, v := range c.byOperation {
		byOp[k] = float64(v) / nanosPerUSD
	}
	byModel := make(map[string]float64, len(c.byModel))
	for k, v := range c.byModel {
		byModel[k] = float64(v) / nanosPerUSD
	}

	return model.AICostSnapshot{
		PromptTokens:     c.promptTokens.Load(),
		CompletionTokens: c.completionTokens.Load(),
		TotalCostUSD:     float64(c.costNanos) / nanosPerUSD,
		ByOperation:      byOp,
		ByModel:          byModel,
	}
}

// Reset zeroes the accumulator, used between analysis runs that want a
// fresh per-run cost snapshot.
func (c *CostAccumulator) Reset() {
	c.promptTokens.Store(0)
	c.completionTokens.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.costNanos = 0
	c.byOperation = make(map[string]int64)
	c.byModel = make(map[string]int64)
}
