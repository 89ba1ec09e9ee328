// Package httpx provides the shared HTTP client configuration and retry
// helper used by CatalogClient, AIClient, and VideoTagDetector. Grounded on
// the shared-client-config pattern used across the example pack (a plain
// *http.Client with a tuned Transport, one constructor per caller profile).
package httpx

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig configures a pooled, timeout-bounded HTTP client.
type ClientConfig struct {
	Timeout               time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
}

// DefaultClientConfig is a reasonable general-purpose profile.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               30 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
	}
}

// CatalogClientConfig is tuned for the Catalog GraphQL transport (§4.1:
// bounded max connections, keepalive, 30s default per-request timeout).
func CatalogClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 30 * time.Second
	cfg.MaxIdleConns = 10
	cfg.MaxIdleConnsPerHost = 10
	return cfg
}

// AIClientConfig is tuned for the AI completion service (§5: AIClient
// default deadline 60s).
func AIClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.Timeout = 60 * time.Second
	cfg.ResponseHeaderTimeout = 30 * time.Second
	return cfg
}

// NewClient builds an *http.Client from the given configuration.
func NewClient(cfg ClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}
