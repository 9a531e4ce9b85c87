package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-reading-api/internal/utils"
)

// Roles understood by the reading API.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// ReviewerRoles may author exercises and reconcile grades.
var ReviewerRoles = []string{RoleTeacher, RoleAdmin}

// RequireUser rejects requests that reach it without an authenticated user id.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := c.Locals("user_id").(uint)
		if !ok || id == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}
		return c.Next()
	}
}
