package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"waste-station-backend/internal/metrics"
	"waste-station-backend/internal/mw"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer // served on /metrics when set
}

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger(opts.Logger, opts.Metrics))

	r.GET("/healthz", handler.Health)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	rateLimiter := mw.RateLimiter(mw.NewIPRateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst), opts.Metrics)

	// Cache entries expire after CacheTTL; writes flush the cache.
	cacheStore := cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter, caching)
	{
		api.GET("/stations", handler.ListStations)
		api.POST("/stations", handler.CreateStation)
		api.GET("/stations/:id", handler.GetStation)
		api.PATCH("/stations/:id", handler.UpdateStation)
		api.POST("/stations/:id/confirm_collection", handler.ConfirmCollection)

		api.GET("/history", handler.ListHistory)
		api.GET("/history/:id", handler.GetHistory)
	}

	return r
}
