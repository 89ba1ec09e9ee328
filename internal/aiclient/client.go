// Package aiclient implements the AI completion client (§4.4): prompt
// templating, structured-response parsing, batch analysis, and cost
// accounting. It does not retry at this layer — a malformed structured
// response surfaces as model.AIProtocolError immediately (§4.4, §7).
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sjafferali/stashhog-sub000/internal/httpx"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// ModelPricing is the cost table entry for one model (§4.4).
type ModelPricing struct {
	InputCostPerMillion  float64
	OutputCostPerMillion float64
}

// DefaultPricing documents the built-in cost table; operators may override
// per-model via Config.Pricing.
var DefaultPricing = map[string]ModelPricing{
	"gpt-4o":      {InputCostPerMillion: 2.50, OutputCostPerMillion: 10.00},
	"gpt-4o-mini": {InputCostPerMillion: 0.15, OutputCostPerMillion: 0.60},
}

// Config configures a Client.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Pricing  map[string]ModelPricing
}

// Client is the AI completion client (§4.4).
type Client struct {
	http   *http.Client
	cfg    Config
	Costs  *CostAccumulator
}

// New constructs a Client with its own cost accumulator.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Pricing == nil {
		cfg.Pricing = DefaultPricing
	}
	return &Client{
		http:  httpx.NewClient(httpx.AIClientConfig()),
		cfg:   cfg,
		Costs: NewCostAccumulator(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	Temperature    float64        `json:"temperature"`
}

type completionResponse struct {
	Content string `json:"content"`
	Usage   struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// estimateTokens approximates 4 characters per token, used only when the
// transport does not report exact counts (§4.4).
func estimateTokens(s string) int64 {
	return int64(len(s)/4) + 1
}

// Complete sends a single prompt and returns the raw content string,
// recording cost under operation (§4.4).
func (c *Client) Complete(ctx context.Context, prompt string, operation string) (string, error) {
	content, usage, err := c.completeRaw(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	c.Costs.Record(c.cfg.Model, operation, usage.PromptTokens, usage.CompletionTokens, c.cfg.Pricing)
	return content, nil
}

// CompleteStructured sends a prompt requesting a JSON response conforming
// to schema, and unmarshals it into out. A malformed response surfaces as
// *model.AIProtocolError and is not retried at this layer (§4.4).
func (c *Client) CompleteStructured(ctx context.Context, prompt string, schema map[string]any, operation string, out any) error {
	content, usage, err := c.completeRaw(ctx, prompt, schema)
	if err != nil {
		return err
	}
	c.Costs.Record(c.cfg.Model, operation, usage.PromptTokens, usage.CompletionTokens, c.cfg.Pricing)

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return &model.AIProtocolError{Message: "structured response did not match schema", Cause: err}
	}
	return nil
}

func (c *Client) completeRaw(ctx context.Context, prompt string, schema map[string]any) (string, struct {
	PromptTokens     int64
	CompletionTokens int64
}, error) {
	type usageT = struct {
		PromptTokens     int64
		CompletionTokens int64
	}

	req := completionRequest{
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.2,
	}
	if schema != nil {
		req.ResponseFormat = map[string]any{"type": "json_schema", "json_schema": schema}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", usageT{}, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", usageT{}, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", usageT{}, fmt.Errorf("completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", usageT{}, fmt.Errorf("ai completion service returned %d", resp.StatusCode)
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", usageT{}, fmt.Errorf("decoding completion response: %w", err)
	}

	usage := usageT{PromptTokens: cr.Usage.PromptTokens, CompletionTokens: cr.Usage.CompletionTokens}
	if usage.PromptTokens == 0 {
		usage.PromptTokens = estimateTokens(prompt)
	}
	if usage.CompletionTokens == 0 {
		usage.CompletionTokens = estimateTokens(cr.Content)
	}
	return cr.Content, usage, nil
}

// BatchComplete sends one caller-composed prompt covering multiple scenes
// and parses a response that is a map keyed by scene identifier.
// Unmatched scenes yield an empty result, not a failure (§4.4).
func (c *Client) BatchComplete(ctx context.Context, sceneIDs []string, prompt string, operation string) (map[string]string, error) {
	var raw map[string]string
	if err := c.CompleteStructured(ctx, prompt, nil, operation, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(sceneIDs))
	for _, id := range sceneIDs {
		out[id] = raw[id] // zero value "" when unmatched
	}
	return out, nil
}
