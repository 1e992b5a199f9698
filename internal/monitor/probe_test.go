package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbeStatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		code          int
		wantReachable bool
	}{
		{"200 is reachable", http.StatusOK, true},
		{"204 is reachable", http.StatusNoContent, true},
		{"302 is reachable", http.StatusFound, true},
		{"399 boundary is reachable", 399, true},
		{"400 is unreachable", http.StatusBadRequest, false},
		{"404 is unreachable", http.StatusNotFound, false},
		{"500 is unreachable", http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.code)
			}))
			defer srv.Close()

			out := NewProber(0).Probe(context.Background(), srv.URL)
			if out.Reachable != tc.wantReachable {
				t.Fatalf("reachable = %v, want %v (status %d)", out.Reachable, tc.wantReachable, out.HTTPStatus)
			}
			if out.HTTPStatus == 0 {
				t.Fatalf("expected an HTTP status, got transport failure: %s", out.Err)
			}
			if out.Err != "" {
				t.Fatalf("unexpected error: %s", out.Err)
			}
		})
	}
}

func TestProbeTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	p := NewProber(100 * time.Millisecond)
	start := time.Now()
	out := p.Probe(context.Background(), srv.URL)
	if out.Reachable {
		t.Fatalf("expected unreachable on timeout")
	}
	if out.HTTPStatus != 0 {
		t.Fatalf("expected no HTTP status, got %d", out.HTTPStatus)
	}
	if out.Err == "" {
		t.Fatalf("expected an error message")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe did not respect timeout, took %v", elapsed)
	}
	if out.ResponseMS < 0 {
		t.Fatalf("negative response time %d", out.ResponseMS)
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	out := NewProber(time.Second).Probe(context.Background(), url)
	if out.Reachable || out.HTTPStatus != 0 || out.Err == "" {
		t.Fatalf("expected transport failure, got %+v", out)
	}
}

func TestProbeBadURL(t *testing.T) {
	t.Parallel()
	out := NewProber(time.Second).Probe(context.Background(), "http://\x00bad")
	if out.Reachable || out.Err == "" {
		t.Fatalf("expected failure for malformed URL, got %+v", out)
	}
}
