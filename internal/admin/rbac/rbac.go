// Package rbac maps console roles onto the capabilities checked by handlers
// and templates.
package rbac

import (
	"sort"
	"strings"
)

// Role is a staff access tier as carried in identity claims.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleOps    Role = "ops"
	RoleViewer Role = "viewer"
)

// Capability is a discrete permission.
type Capability string

const (
	CapDashboardView Capability = "dashboard.view"
	CapSessionDetail Capability = "session.detail"
	CapRolesView     Capability = "roles.view"
)

// grants lists what each non-admin role may do. Admins hold every capability
// defined here.
var grants = map[Role][]Capability{
	RoleOps:    {CapDashboardView, CapSessionDetail, CapRolesView},
	RoleViewer: {CapDashboardView},
}

var defined = []Capability{CapDashboardView, CapSessionDetail, CapRolesView}

// ParseRole canonicalises a raw role claim. Unknown roles report false.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if role == RoleAdmin {
		return role, true
	}
	_, ok := grants[role]
	return role, ok
}

// Set is the capability set resolved for one user.
type Set map[Capability]struct{}

// Grant resolves the capabilities held by the given role claims.
func Grant(roles []string) Set {
	set := make(Set)
	for _, raw := range roles {
		role, ok := ParseRole(raw)
		if !ok {
			continue
		}
		if role == RoleAdmin {
			for _, c := range defined {
				set[c] = struct{}{}
			}
			continue
		}
		for _, c := range grants[role] {
			set[c] = struct{}{}
		}
	}
	return set
}

// Has reports whether c is in the set. The empty capability guards nothing.
func (s Set) Has(c Capability) bool {
	if c == "" {
		return true
	}
	_, ok := s[c]
	return ok
}

// List returns the capabilities in a stable order.
func (s Set) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasCapability is shorthand for Grant(roles).Has(c).
func HasCapability(roles []string, c Capability) bool {
	return Grant(roles).Has(c)
}
