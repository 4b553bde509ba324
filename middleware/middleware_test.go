package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaps-tracker/logger"
	"leaps-tracker/models"
	"leaps-tracker/services"
)

type stubRoles map[string]models.Role

func (s stubRoles) Role(_ context.Context, id string) (models.Role, error) {
	if id == "boom" {
		return "", errors.New("db down")
	}
	r, ok := s[id]
	if !ok {
		return "", services.ErrNotFound
	}
	return r, nil
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func okHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{"user": UserID(c), "role": UserRole(c)}})
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret", logger.Discard(), "/health"))
	app.Get("/health", okHandler)
	app.Get("/x", okHandler)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"open path", "/health", "", http.StatusOK},
		{"missing header", "/x", "", http.StatusUnauthorized},
		{"wrong token", "/x", "Bearer nope", http.StatusUnauthorized},
		{"bearer token", "/x", "Bearer secret", http.StatusOK},
		{"raw token", "/x", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			status, body := do(t, app, req)
			assert.Equal(t, tt.want, status)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
}

func TestUserContextAndRoles(t *testing.T) {
	roles := stubRoles{"p1": models.RoleParticipant, "a1": models.RoleAdmin}
	app := fiber.New()
	app.Use(UserContextMiddleware(roles, logger.Discard()))
	app.Get("/me", okHandler)
	app.Get("/admin", RequireRole(models.RoleAdmin), okHandler)

	tests := []struct {
		name string
		path string
		user string
		want int
	}{
		{"no user header", "/me", "", http.StatusUnauthorized},
		{"unknown user", "/me", "ghost", http.StatusUnauthorized},
		{"lookup failure", "/me", "boom", http.StatusInternalServerError},
		{"participant", "/me", "p1", http.StatusOK},
		{"participant on admin route", "/admin", "p1", http.StatusForbidden},
		{"admin on admin route", "/admin", "a1", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.user != "" {
				req.Header.Set("X-User-ID", tt.user)
			}
			// a forged role header must not matter
			req.Header.Set("X-User-Roles", "superadmin")
			status, body := do(t, app, req)
			assert.Equal(t, tt.want, status)
			if status == http.StatusOK {
				data := body["data"].(map[string]interface{})
				assert.Equal(t, tt.user, data["user"])
				assert.Equal(t, string(roles[tt.user]), data["role"])
			}
		})
	}
}

func TestServiceToken(t *testing.T) {
	app := fiber.New()
	app.Post("/hook", ServiceTokenMiddleware("svc", logger.Discard()), okHandler)
	disabled := fiber.New()
	disabled.Post("/hook", ServiceTokenMiddleware("", logger.Discard()), okHandler)

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	status, _ := do(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Service-Token", "svc")
	status, _ = do(t, app, req)
	assert.Equal(t, http.StatusOK, status)

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set("X-Service-Token", "svc")
	status, body := do(t, disabled, req)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DISABLED", body["code"])
}

func TestInMemoryRateLimit(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(nil, 2, time.Minute))
	app.Get("/x", okHandler)

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-User-ID", user)
		status, _ := do(t, app, req)
		return status
	}
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	// limits are per caller
	assert.Equal(t, http.StatusOK, send("b"))
}
