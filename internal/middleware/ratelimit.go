package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/slackdash/internal/metrics"
)

type keyLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client IP and path. Buckets
// idle for longer than ttl are dropped by a background sweep; call Stop on
// shutdown to end it.
//
// It guards the endpoints that spend Slack quota (OAuth exchange and the
// relay), since Slack rate-limits per token and per app.
type RateLimiter struct {
	mu    sync.Mutex
	m     map[string]*keyLimiter
	r     rate.Limit
	burst int
	ttl   time.Duration

	stopOnce sync.Once
	stop     chan struct{}
}

// NewRateLimiter allows perSecond requests per client with bursts of burst.
func NewRateLimiter(perSecond float64, burst int, ttl time.Duration) *RateLimiter {
	rl := &RateLimiter{
		m:     make(map[string]*keyLimiter),
		r:     rate.Limit(perSecond),
		burst: burst,
		ttl:   ttl,
		stop:  make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if kl, ok := rl.m[key]; ok {
		kl.lastSeen = time.Now()
		return kl.lim
	}
	lim := rate.NewLimiter(rl.r, rl.burst)
	rl.m[key] = &keyLimiter{lim: lim, lastSeen: time.Now()}
	return lim
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for k, v := range rl.m {
				if now.Sub(v.lastSeen) > rl.ttl {
					delete(rl.m, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware rejects requests over the limit with 429 and a Retry-After
// header. It expects chi's RealIP to have run so RemoteAddr is the client.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r.RemoteAddr) + "|" + r.URL.Path
		if !rl.get(key).Allow() {
			metrics.RateLimited.WithLabelValues(r.URL.Path).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error":"ratelimited","message":"too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
