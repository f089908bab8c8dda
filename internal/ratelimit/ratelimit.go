// Package ratelimit throttles credential routes per client with a token
// bucket, so password guessing is slowed before it reaches the backend.
package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dishly/dishly/internal/httputil"
	"github.com/dishly/dishly/internal/metrics"
)

const (
	idleAfter       = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

type Limiter struct {
	name     string
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     float64
	burst    float64
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter allows burst requests at once and requestsPerSecond after
// that. name labels rejections in metrics.
func NewLimiter(name string, requestsPerSecond float64, burst int) *Limiter {
	l := &Limiter{
		name:     name,
		visitors: make(map[string]*visitor),
		rate:     requestsPerSecond,
		burst:    float64(burst),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// allow reports whether key may proceed, and if not, how long until it may.
func (l *Limiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, exists := l.visitors[key]
	if !exists {
		l.visitors[key] = &visitor{tokens: l.burst - 1, lastSeen: now}
		return true, 0
	}

	v.tokens = math.Min(l.burst, v.tokens+now.Sub(v.lastSeen).Seconds()*l.rate)
	v.lastSeen = now

	if v.tokens < 1 {
		wait := time.Duration((1 - v.tokens) / l.rate * float64(time.Second))
		return false, wait
	}
	v.tokens--
	return true, 0
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *Limiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > idleAfter {
			delete(l.visitors, key)
		}
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// ClientKey identifies the caller by the host of RemoteAddr. Forwarded
// headers are only honored through RealIP, which rewrites RemoteAddr for
// requests from trusted proxies.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.allow(ClientKey(r))
		if !ok {
			metrics.RateLimited.WithLabelValues(l.name).Inc()
			seconds := int(math.Ceil(wait.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
			httputil.WriteError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
