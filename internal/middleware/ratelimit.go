package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RateInfo is the admission metadata reported to the caller
type RateInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time

	// RetryAfter is Reset minus the limiter's now; zero when admitted
	RetryAfter time.Duration
}

// RateLimiter decides admission per client
type RateLimiter interface {
	Allow(clientID string) (bool, RateInfo)
	Reset(clientID string)
}

// SlidingWindowLimiter admits at most max requests per client within any
// trailing window. Timestamps older than the window are pruned on each check.
type SlidingWindowLimiter struct {
	enabled bool
	max     int
	window  time.Duration
	now     func() time.Time
	logger  *logrus.Logger

	mu      sync.Mutex
	windows map[string]*clientWindow
}

type clientWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	// dead is set when Sweep drops the window from the map
	dead bool
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.Config, logger *logrus.Logger) *SlidingWindowLimiter {
	return NewSlidingWindowLimiter(cfg.RateLimit.Enabled, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, time.Now, logger)
}

// NewSlidingWindowLimiter creates a limiter with an explicit clock
func NewSlidingWindowLimiter(enabled bool, max int, window time.Duration, now func() time.Time, logger *logrus.Logger) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		enabled: enabled,
		max:     max,
		window:  window,
		now:     now,
		logger:  logger,
		windows: make(map[string]*clientWindow),
	}
}

// Allow records and admits the request if the client is under its limit
func (r *SlidingWindowLimiter) Allow(clientID string) (bool, RateInfo) {
	now := r.now()
	if !r.enabled {
		return true, RateInfo{Limit: r.max, Remaining: r.max, Reset: now.Add(r.window)}
	}

	for {
		w := r.getWindow(clientID)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}

		w.prune(now, r.window)
		if len(w.stamps) < r.max {
			w.stamps = append(w.stamps, now)
			info := RateInfo{
				Limit:     r.max,
				Remaining: r.max - len(w.stamps),
				Reset:     now.Add(r.window),
			}
			w.mu.Unlock()
			return true, info
		}

		reset := w.stamps[0].Add(r.window)
		info := RateInfo{
			Limit:      r.max,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: reset.Sub(now),
		}
		w.mu.Unlock()

		r.logger.WithField("client_id", clientID).Warn("Rate limit exceeded")
		return false, info
	}
}

// Reset forgets a client's history
func (r *SlidingWindowLimiter) Reset(clientID string) {
	r.mu.Lock()
	w, ok := r.windows[clientID]
	if ok {
		delete(r.windows, clientID)
	}
	r.mu.Unlock()

	if ok {
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
	}
}

// Sweep drops clients without timestamps inside the window
func (r *SlidingWindowLimiter) Sweep() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, w := range r.windows {
		w.mu.Lock()
		w.prune(now, r.window)
		if len(w.stamps) == 0 {
			w.dead = true
			delete(r.windows, id)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

func (r *SlidingWindowLimiter) getWindow(clientID string) *clientWindow {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[clientID]
	if !ok {
		w = &clientWindow{}
		r.windows[clientID] = w
	}
	return w
}

// prune keeps timestamps with now - t < window; stamps are in arrival order
func (w *clientWindow) prune(now time.Time, window time.Duration) {
	i := 0
	for i < len(w.stamps) && now.Sub(w.stamps[i]) >= window {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// ClientID identifies the caller: first X-Forwarded-For hop, else the remote host
func ClientID(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// Admission returns middleware enforcing the limiter on every path except exempt ones
func Admission(limiter RateLimiter, exemptPaths []string, metrics *Metrics) mux.MiddlewareFunc {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			allowed, info := limiter.Allow(ClientID(r))
			setRateHeaders(w, info)

			if !allowed {
				if metrics != nil {
					metrics.RecordRateLimitExceeded()
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSeconds(info.RetryAfter), 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"detail": "Rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateHeaders(w http.ResponseWriter, info RateInfo) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.Reset.Unix(), 10))
}

// retryAfterSeconds rounds up so a client never retries early
func retryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}
