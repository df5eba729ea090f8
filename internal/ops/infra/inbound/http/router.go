package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterOpsRoutes monta /health, /metrics y la inspección de la cola.
// gatherer nil usa el registro por defecto de Prometheus.
func RegisterOpsRoutes(r *gin.Engine, handler *OpsHandler, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	ops := r.Group("/ops/queues")
	ops.GET("/failed", handler.FailedJobs)
}
