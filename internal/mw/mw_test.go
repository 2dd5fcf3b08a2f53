package mw

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"

	"waste-station-backend/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.10:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestIPRateLimiter_PerClient(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)

	a := limiter.GetLimiter("10.0.0.1")
	assert.Same(t, a, limiter.GetLimiter("10.0.0.1"))
	assert.NotSame(t, a, limiter.GetLimiter("10.0.0.2"))
	assert.Equal(t, 2, limiter.Clients())
}

func TestRateLimiter_Middleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(NewIPRateLimiter(rate.Limit(0.001), 2), metrics.New(prometheus.NewRegistry())))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, perform(r, "GET", "/ping").Code)
	assert.Equal(t, http.StatusOK, perform(r, "GET", "/ping").Code)

	w := perform(r, "GET", "/ping")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"too many requests"}`, w.Body.String())
}

func TestCache_ServesRepeatedGets(t *testing.T) {
	hits := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/stations", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})

	first := perform(r, "GET", "/stations")
	second := perform(r, "GET", "/stations")

	assert.Equal(t, 1, hits)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))
}

func TestCache_SuccessfulWriteFlushes(t *testing.T) {
	volume := 10
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/stations/1", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"volume": volume}) })
	r.PATCH("/stations/1", func(c *gin.Context) {
		volume = 90
		c.JSON(http.StatusOK, gin.H{"volume": volume})
	})
	r.POST("/stations/1/fail", func(c *gin.Context) { c.JSON(http.StatusBadRequest, gin.H{"error": "no"}) })

	assert.JSONEq(t, `{"volume":10}`, perform(r, "GET", "/stations/1").Body.String())

	// A failed write keeps the cache.
	volume = 50
	perform(r, "POST", "/stations/1/fail")
	assert.JSONEq(t, `{"volume":10}`, perform(r, "GET", "/stations/1").Body.String())

	perform(r, "PATCH", "/stations/1")
	assert.JSONEq(t, `{"volume":90}`, perform(r, "GET", "/stations/1").Body.String())
}

func TestCache_ReadOverlappingWriteIsNotStored(t *testing.T) {
	var volume atomic.Int64
	volume.Store(10)
	reading := make(chan struct{})
	release := make(chan struct{})
	var slow atomic.Bool
	slow.Store(true)

	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/stations/1", func(c *gin.Context) {
		v := volume.Load()
		if slow.CompareAndSwap(true, false) {
			close(reading)
			<-release
		}
		c.JSON(http.StatusOK, gin.H{"volume": v})
	})
	r.PATCH("/stations/1", func(c *gin.Context) {
		volume.Store(90)
		c.JSON(http.StatusOK, gin.H{"volume": 90})
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- perform(r, "GET", "/stations/1") }()

	<-reading
	require.Equal(t, http.StatusOK, perform(r, "PATCH", "/stations/1").Code)
	close(release)
	assert.JSONEq(t, `{"volume":10}`, (<-done).Body.String())

	w := perform(r, "GET", "/stations/1")
	assert.JSONEq(t, `{"volume":90}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-Cache"))

	assert.Equal(t, "HIT", perform(r, "GET", "/stations/1").Header().Get("X-Cache"))
}

func TestCache_DoesNotStoreErrors(t *testing.T) {
	calls := 0
	r := gin.New()
	r.Use(Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/missing", func(c *gin.Context) {
		calls++
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	perform(r, "GET", "/missing")
	perform(r, "GET", "/missing")
	assert.Equal(t, 2, calls)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core), nil))
	r.GET("/stations/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := perform(r, "GET", "/stations/7")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req, _ := http.NewRequest("GET", "/stations/8", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc123", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	fields := entries[1].ContextMap()
	assert.Equal(t, "abc123", fields["request_id"])
	assert.Equal(t, "/stations/:id", fields["route"])
	assert.Equal(t, int64(http.StatusNoContent), fields["status"])
}

func TestCache_HitKeepsCurrentRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop(), nil), Cache(cache.New(time.Minute, time.Minute), time.Minute))
	r.GET("/stations", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })

	first := perform(r, "GET", "/stations")
	second := perform(r, "GET", "/stations")

	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.NotEmpty(t, second.Header().Get(RequestIDHeader))
	assert.NotEqual(t, first.Header().Get(RequestIDHeader), second.Header().Get(RequestIDHeader))
}
