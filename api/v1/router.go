package v1

import (
	"go_flare/api/v1/flares"
	"go_flare/api/v1/middleware"
	"go_flare/internal/dispatcher"
	"go_flare/internal/httpx"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the components the HTTP surface talks to
type Dependencies struct {
	Dispatcher *dispatcher.Dispatcher
	Socket     *socketio.Server    // optional
	Gatherer   prometheus.Gatherer // optional, defaults to the global registry
	Logger     *logrus.Entry
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, deps Dependencies) {
	if deps.Logger != nil {
		r.Use(middleware.RequestLogger(deps.Logger))
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if deps.Socket != nil {
		r.GET("/socket.io/*any", gin.WrapH(deps.Socket))
		r.POST("/socket.io/*any", gin.WrapH(deps.Socket))
	}

	r.NoRoute(func(c *gin.Context) {
		httpx.FailErr(c, httpx.ErrNotFound("route not found"))
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", pingHandler)

		flaresHandler := flares.NewHandler(deps.Dispatcher, deps.Logger)
		flaresGroup := v1.Group("/flares")
		{
			flaresGroup.POST("", flaresHandler.Create)
			flaresGroup.POST("/batch", flaresHandler.CreateBatch)
		}

		v1.GET("/dispatcher/stats", statsHandler(deps.Dispatcher))
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// statsHandler returns the governor snapshot
func statsHandler(d *dispatcher.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := d.Stats()
		c.Header("Cache-Control", "no-store")
		httpx.OK(c, gin.H{
			"inFlight":         stats.InFlight,
			"attemptsInWindow": stats.AttemptsInWindow,
			"maxConcurrent":    stats.MaxConcurrent,
			"rateLimit":        stats.RateLimit,
			"windowSeconds":    stats.Window.Seconds(),
		})
	}
}
