package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeLimiterStore struct {
	counts map[string]int64
	err    error
	keys   []string
}

func (f *fakeLimiterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	f.keys = append(f.keys, key)
	return f.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitBlocksOverBudget(t *testing.T) {
	store := &fakeLimiterStore{}
	policy := RateLimitPolicy{Window: time.Minute, Limit: 2}
	handler := RateLimit(policy, store, testLogger())(okHandler())

	riderID := uuid.New()
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
		req = req.WithContext(WithRiderID(req.Context(), riderID.String()))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d", i, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req = req.WithContext(WithRiderID(req.Context(), riderID.String()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
}

func TestRateLimitKeysByRiderThenIP(t *testing.T) {
	store := &fakeLimiterStore{}
	policy := RateLimitPolicy{Window: time.Minute, Limit: 10}
	handler := RateLimit(policy, store, testLogger())(okHandler())

	riderID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req = req.WithContext(WithRiderID(req.Context(), riderID.String()))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	anon := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
	anon.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), anon)

	if len(store.keys) != 2 {
		t.Fatalf("expected 2 counter keys, got %v", store.keys)
	}
	if store.keys[0] != "rl:rider:"+riderID.String() {
		t.Fatalf("unexpected rider key %q", store.keys[0])
	}
	if store.keys[1] != "rl:ip:203.0.113.9" {
		t.Fatalf("unexpected ip key %q", store.keys[1])
	}
}

func TestRateLimitFailsOpenOnStoreError(t *testing.T) {
	store := &fakeLimiterStore{err: errors.New("redis down")}
	policy := RateLimitPolicy{Window: time.Minute, Limit: 1}
	handler := RateLimit(policy, store, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req = req.WithContext(WithRiderID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200 got %d", resp.Code)
	}
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{}, &fakeLimiterStore{}, testLogger())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
