// Package health probes deployed application URLs over HTTP.
package health

import (
	"context"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single probe when the caller's context has no
// deadline of its own.
const DefaultTimeout = 10 * time.Second

// Result holds the outcome of one probe.
type Result struct {
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProbeFunc abstracts the HTTP GET for testability.
// It takes a URL and returns the final status code after redirects.
type ProbeFunc func(ctx context.Context, url string) (statusCode int, err error)

// DefaultProbe performs a real GET using the default HTTP client.
func DefaultProbe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.StatusCode, nil
}

// Prober checks whether a deployed URL answers with a success status.
type Prober struct {
	probe   ProbeFunc
	timeout time.Duration
}

// NewProber creates a Prober with the default HTTP probe.
func NewProber() *Prober {
	return &Prober{probe: DefaultProbe, timeout: DefaultTimeout}
}

// NewProberWithProbe creates a Prober with a custom probe function (for testing).
func NewProberWithProbe(probe ProbeFunc) *Prober {
	return &Prober{probe: probe, timeout: DefaultTimeout}
}

// Check probes the URL once. A transport failure is an unhealthy result with
// the error retained, not a Go error; callers treat unreachable and non-2xx
// the same way.
func (p *Prober) Check(ctx context.Context, url string) Result {
	if url == "" {
		return Result{Healthy: false, Error: "no url to probe"}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	code, err := p.probe(ctx, url)
	if err != nil {
		return Result{Healthy: false, Error: err.Error()}
	}
	return Result{Healthy: Healthy(code), StatusCode: code}
}

// Healthy is the pure classification logic, exported for testing.
// Only 2xx responses count as healthy.
func Healthy(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
