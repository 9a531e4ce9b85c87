package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "reading-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func jwtApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", JWTProtected(testSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals("user_id"), "role": c.Locals("user_role")})
	})
	return app
}

func callWithToken(t *testing.T, app *fiber.App, header string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	payload := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body, &payload))
	return resp, payload
}

func TestJWTProtectedExposesCaller(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "42",
		"role": "Teacher",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	resp, payload := callWithToken(t, jwtApp(), "bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, float64(42), payload["id"])
	require.Equal(t, "teacher", payload["role"])
}

func TestJWTProtectedDefaultsRoleToStudent(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 7,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	resp, payload := callWithToken(t, jwtApp(), "Bearer "+token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "student", payload["role"])
}

func TestJWTProtectedRejectsBadTokens(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()})
	noExpiry := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"})
	noSubject := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for _, header := range []string{"", "Token abc", "Bearer ", "Bearer " + expired, "Bearer " + noExpiry, "Bearer " + noSubject, "Bearer " + unsigned} {
		resp, payload := callWithToken(t, jwtApp(), header)
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, header)
		require.Equal(t, false, payload["success"])
	}
}
