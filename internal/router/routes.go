package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tecnophone/secop-importer/api/internal/auth"
	"github.com/tecnophone/secop-importer/api/internal/config"
	"github.com/tecnophone/secop-importer/api/internal/handler"
	middlewarepkg "github.com/tecnophone/secop-importer/api/internal/middleware"
)

// Handlers aggregates HTTP handlers used by the router.
type Handlers struct {
	Auth    *handler.AuthHandler
	Users   *handler.UserAdminHandler
	Imports *handler.ImportHandler
}

// Register wires all HTTP routes for the API.
func Register(e *echo.Echo, cfg *config.Config, jwtManager *auth.JWTManager, handlers Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		return handler.Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok"})
	})

	e.POST("/auth/register", handlers.Auth.Register)
	e.POST("/auth/login", handlers.Auth.Login)

	secured := e.Group("")
	secured.Use(middlewarepkg.JWT(jwtManager))

	admin := secured.Group("/admin", middlewarepkg.RequireRole("admin"))
	admin.GET("/users", handlers.Users.List)
	admin.POST("/users", handlers.Users.Create)
	admin.PATCH("/users/:id", handlers.Users.Update)
	admin.DELETE("/users/:id", handlers.Users.Delete)

	secured.POST("/imports/upload", handlers.Imports.Upload)
	secured.POST("/imports/execute", handlers.Imports.Execute)
	secured.POST("/imports/extract-deadlines", handlers.Imports.ExtractDeadlines,
		middlewarepkg.ExtractRateLimiter(cfg.RateLimitExtract))
	secured.GET("/imports/history", handlers.Imports.History)
	secured.GET("/imports/history/:id", handlers.Imports.HistoryDetails)
	secured.GET("/imports/stats", handlers.Imports.Stats)
}
