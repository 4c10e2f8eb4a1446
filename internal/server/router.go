package server

import (
	"github.com/abduss/inkledger/internal/config"
	"github.com/abduss/inkledger/internal/engine"
	"github.com/abduss/inkledger/internal/identity"
	"github.com/abduss/inkledger/internal/metrics"
	"github.com/abduss/inkledger/internal/storage"
	"github.com/gin-gonic/gin"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config          config.Config
	DB              storage.PgxPool
	IdentityService *identity.Service
	EngineService   *engine.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/v1")
	api.Use(identity.AppKeyMiddleware(deps.Config.AppKeys))

	if deps.IdentityService != nil {
		identity.RegisterRoutes(api, deps.IdentityService)
	}
	if deps.EngineService != nil {
		engine.RegisterRoutes(api, deps.EngineService)
	}

	return router
}
