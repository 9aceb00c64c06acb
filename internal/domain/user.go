package domain

import (
	"context"
	"strings"
)

type userKey struct{}

// Actions checked against a user's capabilities.
const (
	ActionModelRead  = "model:read"
	ActionModelWrite = "model:write"
	ActionDataRead   = "data:read"
	ActionDataWrite  = "data:write"
	ActionImport     = "data:import"
	ActionExport     = "data:export"
)

// User is the authenticated caller. An empty capability list grants every action.
type User struct {
	ID           string
	Capabilities []string
}

// Can reports whether the user holds the capability for action.
// A capability "data:*" grants every data action.
func (u User) Can(action string) bool {
	if len(u.Capabilities) == 0 {
		return true
	}
	prefix, _, _ := strings.Cut(action, ":")
	for _, c := range u.Capabilities {
		if c == action || c == "*" || c == prefix+":*" {
			return true
		}
	}
	return false
}

// ContextWithUser stores the caller in the context.
func ContextWithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext extracts the caller. ok is false for anonymous contexts.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}
