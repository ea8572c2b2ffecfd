package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/tecnophone/secop-importer/api/internal/auth"
	"github.com/tecnophone/secop-importer/api/internal/config"
	"github.com/tecnophone/secop-importer/api/internal/database"
	"github.com/tecnophone/secop-importer/api/internal/handler"
	middlewarepkg "github.com/tecnophone/secop-importer/api/internal/middleware"
	"github.com/tecnophone/secop-importer/api/internal/odoo"
	"github.com/tecnophone/secop-importer/api/internal/repository"
	"github.com/tecnophone/secop-importer/api/internal/router"
	"github.com/tecnophone/secop-importer/api/internal/scraper"
	"github.com/tecnophone/secop-importer/api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer pool.Close()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)

	usersRepo := repository.NewPGXUsersRepository(pool)
	importsRepo := repository.NewPGXImportsRepository(pool)

	authService := service.NewAuthService(usersRepo, jwtManager)
	userService := service.NewUserService(usersRepo)

	deadlineStore := scraper.NewDeadlineStore(0)
	extractor := scraper.NewExtractor(cfg.DeadlineBaseURL)
	dialSink := func() (odoo.Client, error) {
		session, err := odoo.Dial(odoo.Config{
			URL:      cfg.Odoo.URL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			Password: cfg.Odoo.Password,
		})
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	importService := service.NewImportService(
		cfg.UploadDir, importsRepo, deadlineStore, extractor, dialSink,
		cfg.Odoo.URL, cfg.Odoo.Database,
	)

	handlers := router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Users:   handler.NewUserAdminHandler(userService),
		Imports: handler.NewImportHandler(importService),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging())
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, jwtManager, handlers)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + cfg.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
