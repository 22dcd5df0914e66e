// Package httpclient builds the HTTP client shared by the upstream providers.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"customllm/config"
)

// ClientConfig holds transport and timeout settings for upstream calls
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration

	// Timeout bounds a whole request, including reading a streamed body
	Timeout time.Duration

	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultConfig returns timeouts that match the OpenAI/Anthropic SDK defaults (10 minutes).
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               600 * time.Second,
		DialTimeout:           30 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 600 * time.Second,
	}
}

// FromConfig applies the HTTP_TIMEOUT and HTTP_RESPONSE_HEADER_TIMEOUT settings
// (in seconds) on top of DefaultConfig. Non-positive values keep the defaults.
func FromConfig(cfg config.HTTPConfig) ClientConfig {
	cc := DefaultConfig()
	if cfg.Timeout > 0 {
		cc.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if cfg.ResponseHeaderTimeout > 0 {
		cc.ResponseHeaderTimeout = time.Duration(cfg.ResponseHeaderTimeout) * time.Second
	}
	return cc
}

// NewHTTPClient creates a new HTTP client. A nil config means DefaultConfig().
func NewHTTPClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		def := DefaultConfig()
		cfg = &def
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}
