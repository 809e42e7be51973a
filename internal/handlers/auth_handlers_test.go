package handlers

import (
	"net/http"
	"testing"

	"github.com/coursebook/backend/internal/models"
)

func TestAuthRegister(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("POST /api/auth/register creates user and returns token", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":    "register@test.com",
			"password": "password123",
			"username": "registrant",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)

		data := body["data"].(map[string]any)
		if token, _ := data["token"].(string); token == "" {
			t.Fatalf("expected a token in register response")
		}
		user := data["user"].(map[string]any)
		if user["email"] != "register@test.com" {
			t.Fatalf("expected normalized email, got %v", user["email"])
		}
		if user["role"] != "user" {
			t.Fatalf("expected role user, got %v", user["role"])
		}
		if _, exposed := user["passwordHash"]; exposed {
			t.Fatalf("password hash must never appear in responses")
		}
	})

	t.Run("POST /api/auth/register normalizes email case", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":    "  MiXeD@Test.Com ",
			"password": "password123",
			"username": "mixed",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		user := body["data"].(map[string]any)["user"].(map[string]any)
		if user["email"] != "mixed@test.com" {
			t.Fatalf("expected lowercased trimmed email, got %v", user["email"])
		}
	})

	t.Run("POST /api/auth/register rejects invalid email", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":    "not-an-email",
			"password": "password123",
			"username": "bademail",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "invalid email")
	})

	t.Run("POST /api/auth/register rejects short password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":    "short@test.com",
			"password": "short",
			"username": "shorty",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "password must be at least 8 characters")
	})

	t.Run("POST /api/auth/register rejects missing username", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":    "nouser@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "username is required")
	})

	t.Run("POST /api/auth/register rejects duplicate email", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":    "register@test.com",
			"password": "password123",
			"username": "duplicate",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "email already registered")
	})
}

func TestAuthLogin(t *testing.T) {
	env := setupTestEnv(t)
	createTestUser(t, env.db, "login@test.com", "password123", models.UserRoleUser)

	t.Run("POST /api/auth/login succeeds with valid credentials", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "login@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if token, _ := data["token"].(string); token == "" {
			t.Fatalf("expected a token in login response")
		}
	})

	t.Run("POST /api/auth/login rejects wrong password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "login@test.com",
			"password": "wrong-password",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid credentials")
	})

	t.Run("POST /api/auth/login rejects unknown email with same error", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "nobody@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid credentials")
	})

	t.Run("POST /api/auth/login requires email and password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email": "login@test.com",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "email and password are required")
	})
}

func TestAuthSession(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "session@test.com", "password123", models.UserRoleUser)

	t.Run("GET /api/auth/me returns current user", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["id"] != user.ID.String() {
			t.Fatalf("expected current user id %s, got %v", user.ID, data["id"])
		}
	})

	t.Run("GET /api/auth/me without token is unauthorized", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "missing authorization header")
	})

	t.Run("GET /api/auth/me with garbage token is unauthorized", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders("garbage"))
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("PUT /api/auth/me updates username", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
			"username": "renamed",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["username"] != "renamed" {
			t.Fatalf("expected updated username, got %v", data["username"])
		}
	})

	t.Run("PUT /api/auth/me rejects empty username", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
			"username": "  ",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "username cannot be empty")
	})

	t.Run("PUT /api/auth/me sets and clears avatar", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
			"avatarURL": "https://cdn.test/avatar.png",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["avatarURL"] != "https://cdn.test/avatar.png" {
			t.Fatalf("expected avatar URL set, got %v", data["avatarURL"])
		}

		resp = performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{
			"avatarURL": "",
		}, authHeaders(token))
		body = decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data = body["data"].(map[string]any)
		if _, present := data["avatarURL"]; present {
			t.Fatalf("expected avatar URL cleared, got %v", data["avatarURL"])
		}
	})

	t.Run("PUT /api/auth/me with no fields is bad request", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/me", map[string]any{}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "no valid fields to update")
	})
}

func TestAuthChangePassword(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "password@test.com", "password123", models.UserRoleUser)

	t.Run("PUT /api/auth/password rejects wrong old password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
			"oldPassword": "wrong-password",
			"newPassword": "newpassword456",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "oldPassword is incorrect")
	})

	t.Run("PUT /api/auth/password rejects short new password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
			"oldPassword": "password123",
			"newPassword": "short",
		}, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "newPassword must be at least 8 characters")
	})

	t.Run("PUT /api/auth/password rotates the credential", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/auth/password", map[string]any{
			"oldPassword": "password123",
			"newPassword": "newpassword456",
		}, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "password@test.com",
			"password": "password123",
		}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)

		resp = performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "password@test.com",
			"password": "newpassword456",
		}, nil)
		assertStatus(t, resp, http.StatusOK)
	})
}

func TestAuthDeleteMe(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "delete-admin@test.com", "password123", models.UserRoleAdmin)
	member, memberToken := createTestUser(t, env.db, "delete-member@test.com", "password123", models.UserRoleUser)

	t.Run("DELETE /api/auth/me refuses admin self-deletion", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/auth/me", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusForbidden)
		assertEnvelopeError(t, body, "admin accounts cannot be deleted")
	})

	t.Run("DELETE /api/auth/me removes account and owned courses", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/courses/", map[string]any{
			"name": "Doomed Course",
		}, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusCreated)

		resp = performRequest(t, env.app, http.MethodDelete, "/api/auth/me", nil, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusOK)

		var userCount int64
		env.db.Model(&models.User{}).Where("id = ?", member.ID).Count(&userCount)
		if userCount != 0 {
			t.Fatalf("expected user row removed")
		}

		var courseCount int64
		env.db.Model(&models.Course{}).Where("owner_id = ?", member.ID).Count(&courseCount)
		if courseCount != 0 {
			t.Fatalf("expected owned courses removed with the account")
		}

		resp = performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(memberToken))
		assertStatus(t, resp, http.StatusUnauthorized)
	})
}
