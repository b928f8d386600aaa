package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/config"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/database"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/handlers"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/middleware"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/services"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/storage"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/logger"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var uploader services.Uploader
	if cfg.Store.Endpoint != "" {
		objectStore, err := storage.NewObjectStore(cfg.Store)
		if err != nil {
			log.Fatalf("object store initialization failed: %v", err)
		}
		if err := objectStore.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring audit bucket: %v", err)
		}
		uploader = objectStore
	}

	coordinator := services.NewCoordinator(db)
	auditService := services.NewAuditService(db, uploader)
	auditService.StartExporter(cfg.Audit.ExportInterval)

	authHandler := handlers.NewAuthHandler(db)
	familyHandler := handlers.NewFamilyHandler(db, coordinator, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS())
	app.Use(middleware.RequestLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	familyRoutes := api.Group("/family", authMiddleware.RequireAuth)
	familyRoutes.Post("/", familyHandler.Create)
	familyRoutes.Get("/", familyHandler.Get)
	familyRoutes.Post("/action", familyHandler.Action)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
