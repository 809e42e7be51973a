package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coursebook/backend/internal/database"
	"github.com/coursebook/backend/internal/middleware"
	"github.com/coursebook/backend/internal/models"
	"github.com/coursebook/backend/internal/services"
	"github.com/coursebook/backend/pkg/logger"
	"github.com/coursebook/backend/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	auditService := services.NewAuditService(db)
	settingsService := services.NewSettingsService(db)

	authHandler := NewAuthHandler(db, auditService)
	usersHandler := NewUsersHandler(db, auditService)
	coursesHandler := NewCoursesHandler(db, auditService)
	topicsHandler := NewTopicsHandler(db, auditService)
	subjectsHandler := NewSubjectsHandler(db, nil, auditService)
	appearanceHandler := NewAppearanceHandler(settingsService)
	snapshotHandler := NewSnapshotHandler(db, auditService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 25 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("http://localhost:3001"))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Get("/version", GetVersion)

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

	return &testEnv{app: app, db: db}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		Username:     "testuser",
		PasswordHash: hash,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
