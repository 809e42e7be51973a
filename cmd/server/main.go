package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursebook/backend/internal/config"
	"github.com/coursebook/backend/internal/database"
	"github.com/coursebook/backend/internal/handlers"
	"github.com/coursebook/backend/internal/middleware"
	"github.com/coursebook/backend/internal/services"
	"github.com/coursebook/backend/internal/storage"
	"github.com/coursebook/backend/pkg/logger"
	"github.com/coursebook/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB, cfg.Admin)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var storageClient *storage.MinIOClient
	if cfg.MinIO.Enabled {
		storageClient, err = storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := storageClient.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
	}

	auditService := services.NewAuditService(db)
	settingsService := services.NewSettingsService(db)

	authHandler := handlers.NewAuthHandler(db, auditService)
	usersHandler := handlers.NewUsersHandler(db, auditService)
	coursesHandler := handlers.NewCoursesHandler(db, auditService)
	topicsHandler := handlers.NewTopicsHandler(db, auditService)
	subjectsHandler := handlers.NewSubjectsHandler(db, storageClient, auditService)
	appearanceHandler := handlers.NewAppearanceHandler(settingsService)
	snapshotHandler := handlers.NewSnapshotHandler(db, auditService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 25 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/version", handlers.GetVersion)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/me", authMiddleware.RequireAuth, authHandler.UpdateMe)
	authRoutes.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Delete("/me", authMiddleware.RequireAuth, authHandler.DeleteMe)

	userRoutes := api.Group("/users", authMiddleware.RequireAuth, middleware.AdminOnly)
	userRoutes.Get("/", usersHandler.List)
	userRoutes.Get("/:id", usersHandler.Get)
	userRoutes.Put("/:id", usersHandler.Update)
	userRoutes.Delete("/:id", usersHandler.Delete)
	userRoutes.Get("/:id/courses", usersHandler.Courses)

	courseRoutes := api.Group("/courses", authMiddleware.RequireAuth)
	courseRoutes.Post("/", coursesHandler.Create)
	courseRoutes.Get("/", coursesHandler.List)
	courseRoutes.Put("/reorder", coursesHandler.Reorder)
	courseRoutes.Get("/:id", coursesHandler.Get)
	courseRoutes.Put("/:id", coursesHandler.Update)
	courseRoutes.Delete("/:id", coursesHandler.Delete)
	courseRoutes.Post("/:id/topics", topicsHandler.Create)
	courseRoutes.Put("/:id/topics/reorder", topicsHandler.Reorder)

	topicRoutes := api.Group("/topics", authMiddleware.RequireAuth)
	topicRoutes.Put("/:id", topicsHandler.Update)
	topicRoutes.Delete("/:id", topicsHandler.Delete)
	topicRoutes.Post("/:id/subjects", subjectsHandler.Create)
	topicRoutes.Put("/:id/subjects/reorder", subjectsHandler.Reorder)

	subjectRoutes := api.Group("/subjects", authMiddleware.RequireAuth)
	subjectRoutes.Put("/:id", subjectsHandler.Update)
	subjectRoutes.Put("/:id/details", subjectsHandler.UpdateDetails)
	subjectRoutes.Delete("/:id", subjectsHandler.Delete)
	subjectRoutes.Post("/:id/images", subjectsHandler.UploadImage)

	api.Get("/appearance", authMiddleware.RequireAuth, appearanceHandler.Get)
	api.Put("/appearance", authMiddleware.RequireAuth, appearanceHandler.Update)

	snapshotRoutes := api.Group("/snapshot", authMiddleware.RequireAuth, middleware.AdminOnly)
	snapshotRoutes.Get("/", snapshotHandler.Export)
	snapshotRoutes.Post("/", snapshotHandler.Import)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
		"driver":  cfg.DB.Driver,
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
