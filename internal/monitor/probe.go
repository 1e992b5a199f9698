package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultProbeTimeout bounds a single reachability check.
const DefaultProbeTimeout = 10 * time.Second

// Prober performs one bounded-timeout HTTP check against a URL.
//
// Any received HTTP status counts as a completed probe; reachability is
// classified purely by status code (200..399). Only transport-level failures
// (timeout, connection refused, DNS) yield an unreachable outcome.
type Prober struct {
	mu     sync.Mutex
	client *http.Client
}

func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{client: &http.Client{Timeout: timeout}}
}

// SetTimeout swaps the probe timeout at runtime (config reload).
func (p *Prober) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	p.mu.Lock()
	p.client = &http.Client{Timeout: timeout}
	p.mu.Unlock()
}

func (p *Prober) httpClient() *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// Probe issues a single GET and classifies the outcome. ResponseMS is
// wall-clock elapsed from request start to outcome determination, measured
// even on failure. Probe has no side effects; persistence is the caller's job.
func (p *Prober) Probe(ctx context.Context, url string) Outcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Outcome{ResponseMS: msSince(start), Err: err.Error()}
	}

	resp, err := p.httpClient().Do(req)
	elapsed := msSince(start)
	if err != nil {
		return Outcome{ResponseMS: elapsed, Err: err.Error()}
	}
	defer resp.Body.Close()

	return Outcome{
		Reachable:  resp.StatusCode >= 200 && resp.StatusCode < 400,
		ResponseMS: elapsed,
		HTTPStatus: resp.StatusCode,
	}
}

func msSince(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
