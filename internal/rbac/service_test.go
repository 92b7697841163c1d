package rbac

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryResolverRepo struct {
	perms map[int64][]string
	err   error
}

func (r *memoryResolverRepo) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.perms[userID], nil
}

func (r *memoryResolverRepo) HasPermission(ctx context.Context, userID int64, systemName string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	for _, p := range r.perms[userID] {
		if p == systemName {
			return true, nil
		}
	}
	return false, nil
}

// effectiveRepo models the store rows the SQL resolution joins over, and
// applies the same three activity filters: held role active, grant row
// active, permission active.
type effectiveRepo struct {
	roles     map[int64]bool   // role id -> is_active
	userRoles map[int64][]int64
	permNames map[int64]string
	permFlags map[int64]bool
	grants    []effectiveGrant
}

type effectiveGrant struct {
	roleID       int64
	permissionID int64
	active       bool
}

func (r *effectiveRepo) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	seen := make(map[string]struct{})
	for _, roleID := range r.userRoles[userID] {
		if !r.roles[roleID] {
			continue
		}
		for _, g := range r.grants {
			if g.roleID != roleID || !g.active || !r.permFlags[g.permissionID] {
				continue
			}
			seen[r.permNames[g.permissionID]] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *effectiveRepo) HasPermission(ctx context.Context, userID int64, systemName string) (bool, error) {
	names, _ := r.UserPermissions(ctx, userID)
	for _, name := range names {
		if name == systemName {
			return true, nil
		}
	}
	return false, nil
}

type countingMetrics struct {
	decisions map[string]int
}

func (m *countingMetrics) AuthzDecision(decision string) {
	if m.decisions == nil {
		m.decisions = make(map[string]int)
	}
	m.decisions[decision]++
}

func TestUserHasPermission(t *testing.T) {
	repo := &memoryResolverRepo{perms: map[int64][]string{7: {"roles.view", "roles.manage"}}}
	metrics := &countingMetrics{}
	resolver := NewResolver(repo, metrics, nil)
	ctx := context.Background()

	require.True(t, resolver.UserHasPermission(ctx, 7, "roles.view"))
	require.True(t, resolver.UserHasPermission(ctx, 7, "  Roles.View "), "names are normalized before checking")
	require.False(t, resolver.UserHasPermission(ctx, 7, "users.manage"))
	require.False(t, resolver.UserHasPermission(ctx, 99, "roles.view"), "unknown user holds nothing")
	require.False(t, resolver.UserHasPermission(ctx, 7, ""))

	require.Equal(t, 2, metrics.decisions[DecisionAllow])
	require.Equal(t, 3, metrics.decisions[DecisionDeny])
}

func TestUserHasPermissionFailsClosed(t *testing.T) {
	repo := &memoryResolverRepo{err: errors.New("connection reset")}
	metrics := &countingMetrics{}
	resolver := NewResolver(repo, metrics, nil)

	require.False(t, resolver.UserHasPermission(context.Background(), 7, "roles.view"))
	require.Equal(t, 1, metrics.decisions[DecisionError])
	require.Zero(t, metrics.decisions[DecisionAllow])
}

func TestUserPermissionsFailsClosed(t *testing.T) {
	repo := &memoryResolverRepo{err: errors.New("connection reset")}
	metrics := &countingMetrics{}
	resolver := NewResolver(repo, metrics, nil)

	granted := resolver.UserPermissions(context.Background(), 7)
	require.NotNil(t, granted)
	require.Empty(t, granted)
	require.Equal(t, 1, metrics.decisions[DecisionError])
}

func TestUserPermissionsEmptyForUnknownUser(t *testing.T) {
	resolver := NewResolver(&memoryResolverRepo{perms: map[int64][]string{}}, nil, nil)

	require.Empty(t, resolver.UserPermissions(context.Background(), 42))
}

func TestInactiveFlagsRevokeAccess(t *testing.T) {
	repo := &effectiveRepo{
		roles:     map[int64]bool{1: true},
		userRoles: map[int64][]int64{7: {1}},
		permNames: map[int64]string{10: "reports.view", 11: "reports.export"},
		permFlags: map[int64]bool{10: true, 11: true},
		grants: []effectiveGrant{
			{roleID: 1, permissionID: 10, active: true},
			{roleID: 1, permissionID: 11, active: true},
		},
	}
	resolver := NewResolver(repo, nil, nil)
	ctx := context.Background()

	require.True(t, resolver.UserHasPermission(ctx, 7, "reports.view"))
	require.Equal(t, []string{"reports.export", "reports.view"}, resolver.UserPermissions(ctx, 7))

	// Retiring the permission definition revokes access everywhere even
	// though the grant row itself stays active.
	repo.permFlags[10] = false
	require.False(t, resolver.UserHasPermission(ctx, 7, "reports.view"))
	require.Equal(t, []string{"reports.export"}, resolver.UserPermissions(ctx, 7))

	// A suspended grant row denies regardless of the permission flag.
	repo.permFlags[10] = true
	repo.grants[0].active = false
	require.False(t, resolver.UserHasPermission(ctx, 7, "reports.view"))

	// A deactivated role withholds everything it carried.
	repo.grants[0].active = true
	repo.roles[1] = false
	require.False(t, resolver.UserHasPermission(ctx, 7, "reports.view"))
	require.Empty(t, resolver.UserPermissions(ctx, 7))
}

func TestPermissionsDeduplicatedAcrossRoles(t *testing.T) {
	repo := &effectiveRepo{
		roles:     map[int64]bool{1: true, 2: true},
		userRoles: map[int64][]int64{7: {1, 2}},
		permNames: map[int64]string{10: "reports.view"},
		permFlags: map[int64]bool{10: true},
		grants: []effectiveGrant{
			{roleID: 1, permissionID: 10, active: true},
			{roleID: 2, permissionID: 10, active: true},
		},
	}
	resolver := NewResolver(repo, nil, nil)

	require.Equal(t, []string{"reports.view"}, resolver.UserPermissions(context.Background(), 7))
}
