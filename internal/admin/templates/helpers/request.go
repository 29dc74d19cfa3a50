package helpers

import (
	"context"
	"strings"

	"finitefield.org/admin-console/internal/admin/httpserver/middleware"
	"finitefield.org/admin-console/internal/admin/rbac"
)

// JoinBase resolves path under the console base path of the current request.
func JoinBase(ctx context.Context, path string) string {
	base := middleware.BasePathFromContext(ctx)
	path = "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
	if base == "/" {
		return path
	}
	if path == "/" {
		return base
	}
	return base + path
}

// Capabilities returns what the signed-in user may do. Anonymous requests get
// an empty set.
func Capabilities(ctx context.Context) rbac.Set {
	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		return rbac.Set{}
	}
	return rbac.Grant(user.Roles)
}

// Can reports whether the signed-in user holds capability.
func Can(ctx context.Context, capability rbac.Capability) bool {
	return Capabilities(ctx).Has(capability)
}
