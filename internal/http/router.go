package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/smallbiznis-users/internal/config"
	"github.com/smallbiznis/smallbiznis-users/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/smallbiznis-users/internal/http/middleware"
	"github.com/smallbiznis/smallbiznis-users/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, accountHandler *handler.AccountHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/check", accountHandler.Check)
	r.POST("/new", accountHandler.Register)
	r.POST("/login", accountHandler.Login)
	r.GET("/reset", accountHandler.Reset)

	r.GET("/me", authMiddleware.ValidateJWT, accountHandler.Me)
	r.PUT("/me", authMiddleware.ValidateJWT, accountHandler.UpdateMe)
	r.DELETE("/me", authMiddleware.ValidateJWT, accountHandler.DeleteMe)

	r.GET("/:username", authMiddleware.ValidateJWT, accountHandler.Get)
	r.PUT("/:username", authMiddleware.ValidateJWT, accountHandler.UpdateUser)

	return r
}
