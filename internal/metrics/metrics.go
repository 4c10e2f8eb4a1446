// Package metrics exposes Prometheus instrumentation for the service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Operations counts engine operations by name and result.
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkledger_operations_total",
		Help: "Engine operations by operation name and result.",
	}, []string{"op", "result"})

	// CacheLookups counts account snapshot cache hits and misses.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inkledger_cache_lookups_total",
		Help: "Account snapshot cache lookups by outcome.",
	}, []string{"outcome"})
)

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// ObserveOperation records one engine operation outcome.
func ObserveOperation(op, result string) {
	Operations.WithLabelValues(op, result).Inc()
}
