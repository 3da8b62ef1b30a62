package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpH "github.com/beesaferoot/leasekeeper/internal/http/handlers"
	httpMW "github.com/beesaferoot/leasekeeper/internal/http/middleware"
	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
)

type RouterConfig struct {
	ContractHandler *httpH.ContractHandler

	Logger  *logger.Logger
	Metrics *httpMW.HTTPMetrics
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestID())
	r.Use(httpMW.RequestLogger(cfg.Logger))
	r.Use(httpMW.Metrics(cfg.Metrics))

	r.GET("/healthcheck", func(c *gin.Context) { c.String(200, "ok") })
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	if h := cfg.ContractHandler; h != nil {
		contracts := api.Group("/contracts")
		{
			contracts.POST("", h.Create)
			contracts.GET("/expiring", h.Expiring)
			contracts.GET("/next-number", h.NextNumber)
			contracts.GET("/number/:number", h.GetByNumber)
			contracts.GET("/:id", h.Get)
			contracts.PUT("/:id", h.Update)
			contracts.DELETE("/:id", h.Delete)
			contracts.POST("/:id/renew", h.Renew)
			contracts.POST("/:id/terminate", h.Terminate)
			contracts.GET("/:id/history", h.History)
		}

		api.GET("/apartments/:id/contracts", h.ListByApartment)
		api.GET("/apartments/:id/occupied", h.Occupied)
		api.GET("/buildings/:id/contracts", h.ListByBuilding)
	}

	return r
}
