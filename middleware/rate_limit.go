package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yourdeals/deals-web/services"
	"github.com/yourdeals/deals-web/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 3 * time.Minute
	limiterIdleTTL         = 5 * time.Minute
)

// ipLimiter holds a rate limiter and the last time it was seen.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RejectFunc writes the response for a request refused with services.ErrRateLimitExceeded.
type RejectFunc func(w http.ResponseWriter, err error)

// RateLimiter provides per client IP rate limiting. Client IPs come from
// r.RemoteAddr; only install chi's RealIP ahead of it behind a trusted proxy.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	reject   RejectFunc
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter allowing perSecond requests per IP with the given burst.
// A nil reject writes a bare 429.
func NewRateLimiter(perSecond float64, burst int, reject RejectFunc, logger *zap.Logger) *RateLimiter {
	if reject == nil {
		reject = writeRateLimited
	}
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		reject:   reject,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[ip]; exists {
		l.lastSeen = time.Now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.limiters {
		if now.Sub(l.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware enforces the limit, answering 429 with Retry-After when exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.getLimiter(ip).Allow() {
			rl.logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path))
			rl.reject(w, services.ErrRateLimitExceeded.Wrap(nil).
				WithDetail(services.DetailRetryAfter, rl.retryAfter()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the time until one token refills, at least a second.
func (rl *RateLimiter) retryAfter() time.Duration {
	retryAfter := time.Second
	if rl.rate > 0 {
		if d := time.Duration(float64(time.Second) / float64(rl.rate)); d > retryAfter {
			retryAfter = d
		}
	}
	return retryAfter
}

func writeRateLimited(w http.ResponseWriter, err error) {
	retryAfter, _ := services.GetErrorDetails(err)[services.DetailRetryAfter].(time.Duration)
	_ = utils.WriteTooManyRequests(w, "", retryAfter)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
