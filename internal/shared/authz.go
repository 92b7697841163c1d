package shared

import (
	"context"
	"strconv"
	"strings"
)

// Permission system names used by this service's own admin surface.
const (
	PermPermissionsView   = "permissions.view"
	PermPermissionsManage = "permissions.manage"
	PermRolesView         = "roles.view"
	PermRolesManage       = "roles.manage"
	PermUsersView         = "users.view"
	PermUsersManage       = "users.manage"
	PermAuthzInspect      = "authz.inspect"
)

// ActorID extracts the authenticated user's id from the session in context.
func ActorID(ctx context.Context) (int64, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
