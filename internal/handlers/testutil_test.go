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

	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/database"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/middleware"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/models"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/internal/services"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/logger"
	"github.com/Ruchith1018/level-up-your-ledger-sub001/pkg/utils"
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
		t.Fatalf("failed migrating models: %v", err)
	}

	coordinator := services.NewCoordinator(db)
	auditService := services.NewAuditService(db, nil)

	authHandler := NewAuthHandler(db)
	familyHandler := NewFamilyHandler(db, coordinator, auditService)
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

	return &testEnv{app: app, db: db}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	referralCode, err := utils.GenerateCode(8)
	if err != nil {
		t.Fatalf("failed generating referral code: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Test User",
		ReferralCode: referralCode,
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

// createTestFamily creates a family through the API so the creator ends up as
// its admin, and returns the family row.
func createTestFamily(t *testing.T, env *testEnv, token, name string) *models.Family {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/family/", map[string]any{
		"name": name,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	body := decodeJSONMap(t, resp)
	data := body["data"].(map[string]any)

	var family models.Family
	if err := env.db.First(&family, "id = ?", data["id"].(string)).Error; err != nil {
		t.Fatalf("failed loading created family: %v", err)
	}
	return &family
}

func familyAction(t *testing.T, env *testEnv, token string, payload map[string]any) *http.Response {
	t.Helper()
	return performJSONRequest(t, env.app, http.MethodPost, "/api/family/action", payload, authHeaders(token))
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

func assertErrorKind(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if got, _ := body["kind"].(string); got != expected {
		t.Fatalf("expected error kind %q, got %q (body=%+v)", expected, got, body)
	}
}

// waitForAuditRows polls until at least n audit rows with the action exist;
// audit inserts happen on a background queue, not in the request path.
func waitForAuditRows(t *testing.T, db *gorm.DB, action string, n int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int64
		if err := db.Model(&models.AuditLog{}).Where("action = ?", action).Count(&count).Error; err != nil {
			t.Fatalf("failed counting audit rows: %v", err)
		}
		if count >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d audit rows for %s, got %d", n, action, count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// membershipCount counts membership rows matching the optional filters.
func membershipCount(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	tx := db.Model(&models.FamilyMembership{})
	if query != "" {
		tx = tx.Where(query, args...)
	}
	if err := tx.Count(&count).Error; err != nil {
		t.Fatalf("failed counting memberships: %v", err)
	}
	return count
}

func requestCount(t *testing.T, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	tx := db.Model(&models.MembershipRequest{})
	if query != "" {
		tx = tx.Where(query, args...)
	}
	if err := tx.Count(&count).Error; err != nil {
		t.Fatalf("failed counting requests: %v", err)
	}
	return count
}
