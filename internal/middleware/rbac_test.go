package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func roleApp(role interface{}, guards ...fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != nil {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	for _, guard := range guards {
		app.Use(guard)
	}
	app.Get("/reviews", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleAllowsReviewerRoles(t *testing.T) {
	for _, role := range []string{"teacher", " Admin "} {
		app := roleApp(role, RequireRole(ReviewerRoles...))
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/reviews", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, role)
	}
}

func TestRequireRoleRejectsLearnersAndAnonymous(t *testing.T) {
	for _, role := range []interface{}{"student", nil} {
		app := roleApp(role, RequireRole(ReviewerRoles...))
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/reviews", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	}
}

func TestRequireUser(t *testing.T) {
	app := fiber.New()
	app.Get("/anonymous", RequireUser(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/known", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(4))
		return c.Next()
	}, RequireUser(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/anonymous", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/known", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
