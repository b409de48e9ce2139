package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/opexlabs/formscore/internal/app"
	iauth "github.com/opexlabs/formscore/internal/auth"
	"github.com/opexlabs/formscore/internal/database"
	"github.com/opexlabs/formscore/internal/handlers"
	"github.com/opexlabs/formscore/internal/middleware"
	"github.com/opexlabs/formscore/internal/permissions"
)

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	r.GET("/health", handlers.Health())
	r.GET("/api/health", handlers.Health())

	// Protected routes
	store, err := database.NewGrantStore(db)
	if err != nil {
		return nil, err
	}
	evaluator, err := permissions.NewEvaluator(store)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	if err := registerPermissionRoutes(api, db, evaluator); err != nil {
		return nil, err
	}

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
