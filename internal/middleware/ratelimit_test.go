package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatmux/chatmux/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(max int, window time.Duration) (*SlidingWindowLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewSlidingWindowLimiter(true, max, window, clock.Now, logger.NewNop()), clock
}

func TestSlidingWindow_AdmitsUpToMax(t *testing.T) {
	limiter, clock := newLimiter(3, time.Minute)
	start := clock.Now()

	for i := 0; i < 3; i++ {
		ok, info := limiter.Allow("c1")
		require.True(t, ok)
		assert.Equal(t, 2-i, info.Remaining)
		assert.Equal(t, 3, info.Limit)
	}

	clock.Advance(10 * time.Second)
	ok, info := limiter.Allow("c1")
	assert.False(t, ok)
	assert.Equal(t, 0, info.Remaining)
	assert.Equal(t, start.Add(time.Minute), info.Reset, "reset is the oldest stamp plus the window")

	ok, _ = limiter.Allow("c2")
	assert.True(t, ok, "clients are isolated")
}

func TestSlidingWindow_SlidesOnWindowBoundary(t *testing.T) {
	limiter, clock := newLimiter(2, time.Minute)

	limiter.Allow("c")
	clock.Advance(30 * time.Second)
	limiter.Allow("c")

	ok, _ := limiter.Allow("c")
	require.False(t, ok)

	clock.Advance(30 * time.Second)
	ok, _ = limiter.Allow("c")
	assert.True(t, ok, "first stamp is exactly one window old and no longer counts")

	ok, _ = limiter.Allow("c")
	assert.False(t, ok)
}

func TestSlidingWindow_ConcurrentNeverExceedsMax(t *testing.T) {
	limiter, _ := newLimiter(10, time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow("shared"); ok {
				admitted.Add(1)
			}
			limiter.Sweep()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), admitted.Load())
}

func TestSlidingWindow_SweepDropsIdleClients(t *testing.T) {
	limiter, clock := newLimiter(5, time.Minute)

	limiter.Allow("idle")
	clock.Advance(45 * time.Second)
	limiter.Allow("active")

	clock.Advance(20 * time.Second)
	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 0, limiter.Sweep())

	_, info := limiter.Allow("active")
	assert.Equal(t, 3, info.Remaining)
}

func TestSlidingWindow_Disabled(t *testing.T) {
	limiter := NewSlidingWindowLimiter(false, 1, time.Minute, time.Now, logger.NewNop())
	for i := 0; i < 5; i++ {
		ok, _ := limiter.Allow("c")
		assert.True(t, ok)
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		remote    string
		want      string
	}{
		{"forwarded first hop", "10.0.0.1, 10.0.0.2", "127.0.0.1:9000", "10.0.0.1"},
		{"remote host", "", "192.168.1.5:4321", "192.168.1.5"},
		{"remote without port", "", "pipe", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, ClientID(r))
		})
	}
}

func TestAdmission_Middleware(t *testing.T) {
	limiter := NewSlidingWindowLimiter(true, 1, time.Minute, time.Now, logger.NewNop())

	router := mux.NewRouter()
	router.Use(Admission(limiter, []string{"/health"}, nil))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {})
	router.HandleFunc("/api/chat/message", func(w http.ResponseWriter, r *http.Request) {})

	call := func(path string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec
	}

	first := call("/api/chat/message")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, first.Header().Get("X-RateLimit-Reset"))

	second := call("/api/chat/message")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"Rate limit exceeded"}`, second.Body.String())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, call("/health").Code)
	}
}

func TestAdmission_RetryAfterFollowsLimiterClock(t *testing.T) {
	limiter, clock := newLimiter(1, time.Minute)

	router := mux.NewRouter()
	router.Use(Admission(limiter, nil, nil))
	router.HandleFunc("/api/chat/message", func(w http.ResponseWriter, r *http.Request) {})

	call := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/chat/message", nil)
		r.RemoteAddr = "198.51.100.4:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec
	}

	require.Equal(t, http.StatusOK, call().Code)

	clock.Advance(15 * time.Second)
	rejected := call()
	require.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "45", rejected.Header().Get("Retry-After"))
	assert.Equal(t, strconv.FormatInt(clock.Now().Add(45*time.Second).Unix(), 10), rejected.Header().Get("X-RateLimit-Reset"))

	clock.Advance(44*time.Second + 500*time.Millisecond)
	assert.Equal(t, "1", call().Header().Get("Retry-After"), "partial seconds round up")
}
