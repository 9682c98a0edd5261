package auth

import (
	"fmt"
	"slices"
)

// Moderator may approve submitted entities.
const Moderator = "moderator"

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID    string
	Roles []string
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// ForbiddenError indicates a missing role or ownership.
type ForbiddenError struct {
	Role   string
	Reason string
}

func (e ForbiddenError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("role %s required", e.Role)
	}
	if e.Reason != "" {
		return e.Reason
	}
	return "forbidden"
}

// RequireRole fails with ForbiddenError unless a carries role.
func RequireRole(a Actor, role string) error {
	if a.HasRole(role) {
		return nil
	}
	return ForbiddenError{Role: role}
}

// RequireOwner fails unless a owns the resource or is a moderator.
func RequireOwner(a Actor, ownerID string) error {
	if a.ID == ownerID || a.HasRole(Moderator) {
		return nil
	}
	return ForbiddenError{Reason: "only the owner can change this entity"}
}
