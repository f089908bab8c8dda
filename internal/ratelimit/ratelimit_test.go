package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(t *testing.T, rate float64, burst int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter("test", rate, burst)
	l.now = clock.now
	t.Cleanup(l.Stop)
	return l, clock
}

func TestRequestsWithinBurstAreAllowed(t *testing.T) {
	burst := 5
	limiter, _ := newTestLimiter(t, 1, burst)

	for i := 0; i < burst; i++ {
		if ok, _ := limiter.allow("192.168.1.1"); !ok {
			t.Errorf("request %d within burst of %d should be allowed", i+1, burst)
		}
	}
}

func TestRequestsExceedingBurstAreDenied(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 3)

	for i := 0; i < 3; i++ {
		limiter.allow("192.168.1.1")
	}

	ok, wait := limiter.allow("192.168.1.1")
	if ok {
		t.Error("request exceeding burst should be denied")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v, want within one token interval", wait)
	}
}

func TestTokensReplenishOverTime(t *testing.T) {
	limiter, clock := newTestLimiter(t, 10, 2)

	limiter.allow("192.168.1.1")
	limiter.allow("192.168.1.1")
	if ok, _ := limiter.allow("192.168.1.1"); ok {
		t.Error("expected request to be denied after exhausting burst")
	}

	clock.advance(150 * time.Millisecond)

	if ok, _ := limiter.allow("192.168.1.1"); !ok {
		t.Error("expected request to be allowed after token replenishment")
	}
}

func TestDifferentClientsHaveIndependentLimits(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, 2)

	limiter.allow("10.0.0.1")
	limiter.allow("10.0.0.1")
	if ok, _ := limiter.allow("10.0.0.1"); ok {
		t.Error("expected third request from first client to be denied")
	}
	if ok, _ := limiter.allow("10.0.0.2"); !ok {
		t.Error("expected first request from second client to be allowed")
	}
}

func TestPruneDropsIdleVisitors(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, 2)
	limiter.allow("10.0.0.1")

	clock.advance(idleAfter + time.Second)
	limiter.prune()

	limiter.mu.Lock()
	n := len(limiter.visitors)
	limiter.mu.Unlock()
	if n != 0 {
		t.Errorf("expected idle visitor pruned, %d left", n)
	}
}

func TestClientKey(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{"remote addr", "203.0.113.5:5123", "", "203.0.113.5"},
		{"forwarded header ignored", "10.0.0.1:80", "198.51.100.7, 10.0.0.1", "10.0.0.1"},
		{"no port", "203.0.113.5", "", "203.0.113.5"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := ClientKey(req); got != tc.want {
				t.Errorf("ClientKey = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0.5, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Errorf("Retry-After = %q, want 2", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON error body")
	}
}

func TestRotatedForwardedHeaderDoesNotResetBucket(t *testing.T) {
	limiter, _ := newTestLimiter(t, 0.5, 5)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := range 100 {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("allowed %d attempts from one address, want the burst of 5", allowed)
	}
}

func TestRealIP(t *testing.T) {
	proxies, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	tests := []struct {
		name      string
		remote    string
		forwarded []string
		want      string
	}{
		{"untrusted peer keeps its address", "203.0.113.5:5123", []string{"198.51.100.7"}, "203.0.113.5"},
		{"trusted peer, single hop", "10.1.2.3:80", []string{"198.51.100.7"}, "198.51.100.7"},
		{"spoofed leftmost hop ignored", "10.1.2.3:80", []string{"1.2.3.4, 198.51.100.7"}, "198.51.100.7"},
		{"trusted hops skipped", "192.0.2.10:80", []string{"198.51.100.7, 10.0.0.5"}, "198.51.100.7"},
		{"repeated headers", "10.1.2.3:80", []string{"1.2.3.4", "198.51.100.7"}, "198.51.100.7"},
		{"garbage keeps peer", "10.1.2.3:80", []string{"not-an-ip"}, "10.1.2.3"},
		{"only trusted hops keeps peer", "10.1.2.3:80", []string{"10.0.0.9"}, "10.1.2.3"},
		{"no header", "10.1.2.3:80", nil, "10.1.2.3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := RealIP(proxies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientKey(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for _, v := range tc.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tc.want {
				t.Errorf("client = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/33"}); err == nil {
		t.Error("expected an invalid CIDR to fail")
	}
	if _, err := ParseTrustedProxies([]string{"proxy.internal"}); err == nil {
		t.Error("expected a hostname to fail")
	}
	got, err := ParseTrustedProxies([]string{" 127.0.0.1 ", "", "fd00::/8"})
	if err != nil || len(got) != 2 {
		t.Fatalf("got %v, %v", got, err)
	}
}
