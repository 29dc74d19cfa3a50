package partials

import (
	"context"
	"strings"

	"finitefield.org/admin-console/internal/admin/httpserver/middleware"
)

func signedIn(ctx context.Context) bool {
	_, ok := middleware.UserFromContext(ctx)
	return ok
}

func currentUser(ctx context.Context) *middleware.User {
	user, _ := middleware.UserFromContext(ctx)
	return user
}

// displayName prefers the username, then the email, then the UID.
func displayName(user *middleware.User) string {
	switch {
	case user.Username != "":
		return user.Username
	case user.Email != "":
		return user.Email
	}
	return user.UID
}

func showEmail(user *middleware.User) bool {
	return user.Email != "" && user.Email != displayName(user)
}

func environmentCode(env string) string {
	switch strings.ToLower(env) {
	case "production":
		return "PRD"
	case "staging":
		return "STG"
	case "development":
		return "DEV"
	}
	if len(env) > 3 {
		env = env[:3]
	}
	return strings.ToUpper(env)
}
