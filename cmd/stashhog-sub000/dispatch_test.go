package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoolMeta(t *testing.T) {
	assert.True(t, boolMeta(map[string]any{"force": true}, "force"))
	assert.False(t, boolMeta(map[string]any{"force": false}, "force"))
	assert.False(t, boolMeta(map[string]any{}, "force"))
	assert.False(t, boolMeta(map[string]any{"force": "true"}, "force"), "only a real bool counts")
}

func TestStringMeta(t *testing.T) {
	assert.Equal(t, "plan-1", stringMeta(map[string]any{"plan_id": "plan-1"}, "plan_id"))
	assert.Equal(t, "", stringMeta(map[string]any{}, "plan_id"))
}

func TestStringSliceMeta_NativeSlice(t *testing.T) {
	out := stringSliceMeta(map[string]any{"scene_ids": []string{"a", "b"}}, "scene_ids")
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestStringSliceMeta_JSONDecodedSlice(t *testing.T) {
	out := stringSliceMeta(map[string]any{"scene_ids": []any{"a", "b"}}, "scene_ids")
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestStringSliceMeta_Missing(t *testing.T) {
	assert.Nil(t, stringSliceMeta(map[string]any{}, "scene_ids"))
}

func TestFloatMeta(t *testing.T) {
	assert.Equal(t, 0.9, floatMeta(map[string]any{"confidence_threshold": 0.9}, "confidence_threshold", 0.7))
	assert.Equal(t, 0.7, floatMeta(map[string]any{}, "confidence_threshold", 0.7), "falls back to the configured default")
	assert.Equal(t, 0.7, floatMeta(map[string]any{"confidence_threshold": "high"}, "confidence_threshold", 0.7), "wrong type falls back too")
}

func TestIntMeta(t *testing.T) {
	assert.Equal(t, 25, intMeta(map[string]any{"batch_size": float64(25)}, "batch_size", 15))
	assert.Equal(t, 15, intMeta(map[string]any{}, "batch_size", 15), "falls back to the configured default")
}

func TestBatchProgressAdapter_ComputesPercentAndMessage(t *testing.T) {
	var gotPercent int
	var gotMessage string
	adapted := batchProgressAdapter(func(percent int, message string) {
		gotPercent, gotMessage = percent, message
	})

	adapted(1, 4, 10, 40)
	assert.Equal(t, 25, gotPercent)
	assert.Equal(t, "10/40 items processed", gotMessage)
}

func TestBatchProgressAdapter_NilWhenProgressNil(t *testing.T) {
	assert.Nil(t, batchProgressAdapter(nil))
}

func TestBatchProgressAdapter_ZeroTotalIsZeroPercent(t *testing.T) {
	var gotPercent int
	adapted := batchProgressAdapter(func(percent int, _ string) { gotPercent = percent })
	adapted(0, 0, 0, 0)
	assert.Equal(t, 0, gotPercent)
}

func TestCtxCancelToken_ReflectsContextState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	token := tokenAdapter(ctx)
	assert.False(t, token.Cancelled())
	cancel()
	assert.True(t, token.Cancelled())
}
