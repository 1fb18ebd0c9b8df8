// Package http wires the gin router for the API.
package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/fornetto/pizzeria-api/internal/config"
	"github.com/fornetto/pizzeria-api/internal/http/handler"
	httpmiddleware "github.com/fornetto/pizzeria-api/internal/http/middleware"
	"github.com/fornetto/pizzeria-api/internal/middleware"
)

// NewRouter wires gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", handler.Health)

	api := r.Group("/api")
	{
		api.POST("/login", authHandler.Login)
		api.POST("/register", authHandler.Register)
		api.POST("/logout", authHandler.Logout)
		api.POST("/token/refresh", authHandler.Refresh)
		api.GET("/me", authMiddleware.ValidateJWT, authHandler.Me)
	}

	return r
}
