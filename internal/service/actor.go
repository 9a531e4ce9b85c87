package service

import "strings"

// Roles recognised by the API.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uint
	Role string
}

// IsReviewer reports whether the actor may see answer keys and review submissions.
func (a Actor) IsReviewer() bool {
	role := strings.ToLower(strings.TrimSpace(a.Role))
	return role == RoleAdmin || role == RoleTeacher
}
