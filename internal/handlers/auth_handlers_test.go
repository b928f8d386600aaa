package handlers

import (
	"net/http"
	"testing"
)

func TestRegister(t *testing.T) {
	env := setupTestEnv(t)

	t.Run("successful registration returns token, user and referral code", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":       "new-user@test.com",
			"password":    "password123",
			"displayName": "New User",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)

		data := body["data"].(map[string]any)
		if data["token"].(string) == "" {
			t.Fatal("expected a non-empty token")
		}
		user := data["user"].(map[string]any)
		if user["email"].(string) != "new-user@test.com" {
			t.Fatalf("unexpected email %v", user["email"])
		}
		if len(user["referralCode"].(string)) != 8 {
			t.Fatalf("expected an 8-character referral code, got %v", user["referralCode"])
		}
		if _, exposed := user["passwordHash"]; exposed {
			t.Fatal("password hash must not be serialized")
		}
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":       "new-user@test.com",
			"password":    "password123",
			"displayName": "Impostor",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusConflict)
		assertEnvelopeError(t, body, "email already registered")
	})

	t.Run("email is normalized to lower case", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", map[string]any{
			"email":       "  Mixed-Case@Test.COM ",
			"password":    "password123",
			"displayName": "Mixed",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		user := body["data"].(map[string]any)["user"].(map[string]any)
		if user["email"].(string) != "mixed-case@test.com" {
			t.Fatalf("expected lower-cased email, got %v", user["email"])
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		cases := []struct {
			name    string
			payload map[string]any
			message string
		}{
			{
				name:    "missing email",
				payload: map[string]any{"password": "password123", "displayName": "X"},
				message: "a valid email is required",
			},
			{
				name:    "short password",
				payload: map[string]any{"email": "short@test.com", "password": "short", "displayName": "X"},
				message: "password must be at least 8 characters",
			},
			{
				name:    "missing display name",
				payload: map[string]any{"email": "noname@test.com", "password": "password123"},
				message: "displayName is required",
			},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/register", tc.payload, nil)
				body := decodeJSONMap(t, resp)
				assertStatus(t, resp, http.StatusBadRequest)
				assertEnvelopeError(t, body, tc.message)
			})
		}
	})
}

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := createTestUser(t, env.db, "login-user@test.com", "password123")

	t.Run("valid credentials return a token", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "login-user@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["token"].(string) == "" {
			t.Fatal("expected a non-empty token")
		}
		if data["user"].(map[string]any)["id"].(string) != user.ID.String() {
			t.Fatal("expected the stored user in the payload")
		}
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "login-user@test.com",
			"password": "wrong-password",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid credentials")
	})

	t.Run("unknown email gets the same message as a wrong password", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/auth/login", map[string]any{
			"email":    "nobody@test.com",
			"password": "password123",
		}, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertEnvelopeError(t, body, "invalid credentials")
	})
}

func TestMe(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "me-user@test.com", "password123")

	t.Run("returns the authenticated user", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := body["data"].(map[string]any)
		if data["id"].(string) != user.ID.String() {
			t.Fatal("expected the authenticated user's id")
		}
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertErrorKind(t, body, "authentication_failed")
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/auth/me", nil, authHeaders("not-a-jwt"))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusUnauthorized)
		assertErrorKind(t, body, "authentication_failed")
	})
}
