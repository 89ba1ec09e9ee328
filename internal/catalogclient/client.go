// Package catalogclient is the typed wrapper over the Catalog's GraphQL API
// (spec §4.1, §6). It owns a single HTTP connection pool, retries transient
// failures with exponential backoff and jitter, trips a circuit breaker on
// sustained failure, and normalizes responses into internal/model types.
package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sjafferali/stashhog-sub000/internal/entitycache"
	"github.com/sjafferali/stashhog-sub000/internal/httpx"
	"github.com/sjafferali/stashhog-sub000/internal/model"
)

// Config configures a Client.
type Config struct {
	Endpoint   string
	APIKey     string
	RetryPolicy httpx.Policy
}

// Client is a stateless typed wrapper around the Catalog's GraphQL
// endpoint, other than its connection pool and cache (§4.1 state machine).
type Client struct {
	http   *http.Client
	cfg    Config
	cache  *entitycache.Cache
	breaker *gobreaker.CircuitBreaker
}

// New constructs a Client. cache may be shared with other components per
// §4.2; a nil cache disables read caching.
func New(cfg Config, cache *entitycache.Cache) *Client {
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = httpx.DefaultPolicy()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog-graphql",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		http:    httpx.NewClient(httpx.CatalogClientConfig()),
		cfg:     cfg,
		cache:   cache,
		breaker: breaker,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// execute issues a single GraphQL request, retrying transient failures per
// §4.1, and unmarshals the "data" payload into out.
func (c *Client) execute(ctx context.Context, query string, vars map[string]any, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, httpx.Retry(ctx, c.cfg.RetryPolicy, isRetryableCatalogError, func(ctx context.Context) error {
			return c.executeOnce(ctx, query, vars, out)
		})
	})
	return err
}

func (c *Client) executeOnce(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return model.NewCatalogError(model.CatalogErrValidation, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return model.NewCatalogError(model.CatalogErrValidation, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("ApiKey", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.NewCatalogError(model.CatalogErrConnection, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewCatalogError(model.CatalogErrConnection, "reading response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return model.NewCatalogError(model.CatalogErrAuthn, "unauthorized", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.NewCatalogError(model.CatalogErrRateLimited, "rate limited", nil)
	case resp.StatusCode == http.StatusNotFound:
		return model.NewCatalogError(model.CatalogErrNotFound, "not found", nil)
	case resp.StatusCode >= 500:
		return model.NewCatalogError(model.CatalogErrConnection, fmt.Sprintf("server error %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return model.NewCatalogError(model.CatalogErrValidation, fmt.Sprintf("client error %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var gr gqlResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		// Tolerate unknown fields but not malformed JSON (§6).
		return model.NewCatalogError(model.CatalogErrGraphQL, "malformed response", err)
	}
	if len(gr.Errors) > 0 {
		return model.NewCatalogError(model.CatalogErrGraphQL, gr.Errors[0].Message, nil)
	}

	if out == nil || len(gr.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return model.NewCatalogError(model.CatalogErrGraphQL, "decoding data", err)
	}
	return nil
}

// isRetryableCatalogError is the Classifier passed to httpx.Retry (§4.1:
// connection, timeout, 5xx, 429 retried; 401 is not).
func isRetryableCatalogError(err error) bool {
	var ce *model.CatalogError
	if errors.As(err, &ce) {
		return ce.Retryable()
	}
	return false
}
