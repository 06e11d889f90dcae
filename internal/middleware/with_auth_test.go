package middleware_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/competition-hub-api/internal/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func identityApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.JWTProtected(testSecret))
	app.Get("/", middleware.RequireIdentity(), func(c *fiber.Ctx) error {
		name, _ := c.Locals("user_name").(string)
		return c.SendString(c.Locals("user_id").(string) + "|" + name)
	})
	return app
}

func TestJWTProtectedExposesKeycloakIdentity(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":                "f3a1c2d4-user",
		"preferred_username": "jdoe",
		"exp":                time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := identityApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "f3a1c2d4-user|jdoe", readBody(t, resp))
}

func TestJWTProtectedAcceptsQueryTokenAndNumericSubject(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"sub": float64(42), "name": "Jane Doe"}, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
	resp, err := identityApp().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "42|Jane Doe", readBody(t, resp))
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"bad secret":   "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice"}, "other"),
		"no subject":   "Bearer " + signToken(t, jwt.MapClaims{"name": "x"}, testSecret),
		"expired":      "Bearer " + signToken(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret),
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := identityApp().Test(req, -1)
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRequireIdentityWithoutUser(t *testing.T) {
	app := fiber.New()
	app.Get("/", middleware.RequireIdentity(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp := perform(t, app)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCorrelationIDReusesOrIssues(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, "abc-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "abc-123", resp.Header.Get(middleware.CorrelationHeader))
	require.Equal(t, "abc-123", readBody(t, resp))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.CorrelationHeader, strings.Repeat("x", 500))
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	issued := resp.Header.Get(middleware.CorrelationHeader)
	require.Len(t, issued, 36)
}

func TestRateLimitKeysByUser(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	})
	app.Post("/", middleware.RateLimit("submit", 1, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp.StatusCode
	}

	require.Equal(t, fiber.StatusCreated, send("alice"))
	require.Equal(t, fiber.StatusTooManyRequests, send("alice"))
	require.Equal(t, fiber.StatusCreated, send("bob"))
}

func perform(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var builder strings.Builder
	_, err := io.Copy(&builder, resp.Body)
	require.NoError(t, err)
	return builder.String()
}
