package grants

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystone-iam/keystone/internal/permissions"
	"github.com/keystone-iam/keystone/internal/roles"
	"github.com/keystone-iam/keystone/internal/shared"
)

type pair struct {
	roleID       int64
	permissionID int64
}

type memoryRepo struct {
	rows map[pair]bool // pair -> is_active
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[pair]bool)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backup := make(map[pair]bool, len(r.rows))
	for k, v := range r.rows {
		backup[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.rows = backup
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, roleID, permissionID int64) (Grant, error) {
	active, ok := r.rows[pair{roleID, permissionID}]
	if !ok {
		return Grant{}, shared.ErrNotFound
	}
	return Grant{RoleID: roleID, PermissionID: permissionID, IsActive: active}, nil
}

func (r *memoryRepo) ListForRole(ctx context.Context, roleID int64) ([]GrantDetail, error) {
	var details []GrantDetail
	for p, active := range r.rows {
		if p.roleID == roleID {
			details = append(details, GrantDetail{RoleID: p.roleID, PermissionID: p.permissionID, IsActive: active})
		}
	}
	return details, nil
}

func (r *memoryRepo) BoundIDs(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	for p := range r.rows {
		if p.roleID == roleID {
			ids = append(ids, p.permissionID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) Insert(ctx context.Context, grant Grant) error {
	key := pair{grant.RoleID, grant.PermissionID}
	if _, exists := r.rows[key]; exists {
		return shared.ErrDuplicateKey
	}
	r.rows[key] = grant.IsActive
	return nil
}

func (r *memoryRepo) SetActive(ctx context.Context, roleID, permissionID int64, active bool) error {
	key := pair{roleID, permissionID}
	if _, ok := r.rows[key]; !ok {
		return shared.ErrNotFound
	}
	r.rows[key] = active
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, roleID, permissionID int64) error {
	key := pair{roleID, permissionID}
	if _, ok := r.rows[key]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, key)
	return nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) Insert(ctx context.Context, grant Grant) error {
	return t.repo.Insert(ctx, grant)
}

func (t *memoryTx) Delete(ctx context.Context, roleID, permissionID int64) error {
	return t.repo.Delete(ctx, roleID, permissionID)
}

type stubRoles struct {
	existing map[int64]bool
}

func (s *stubRoles) Get(ctx context.Context, id int64) (roles.Role, error) {
	if !s.existing[id] {
		return roles.Role{}, shared.ErrNotFound
	}
	return roles.Role{ID: id, Name: "Agent", IsActive: true}, nil
}

type stubPerms struct {
	existing map[int64]bool
}

func (s *stubPerms) Get(ctx context.Context, id int64) (permissions.Permission, error) {
	if !s.existing[id] {
		return permissions.Permission{}, shared.ErrNotFound
	}
	return permissions.Permission{ID: id, IsActive: true}, nil
}

func (s *stubPerms) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var found []int64
	for _, id := range ids {
		if s.existing[id] {
			found = append(found, id)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found, nil
}

func newTestService(repo *memoryRepo, roleIDs, permIDs []int64) *Service {
	roleSet := make(map[int64]bool)
	for _, id := range roleIDs {
		roleSet[id] = true
	}
	permSet := make(map[int64]bool)
	for _, id := range permIDs {
		permSet[id] = true
	}
	return NewService(repo, &stubRoles{existing: roleSet}, &stubPerms{existing: permSet}, nil, nil, nil)
}

func TestGrantIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, []int64{1}, []int64{10})
	ctx := context.Background()

	_, outcome, err := svc.Grant(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, OutcomeGranted, outcome)

	grant, outcome, err := svc.Grant(ctx, 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyGranted, outcome)
	require.True(t, grant.IsActive)

	// Exactly one row exists for the pair.
	require.Len(t, repo.rows, 1)
	require.True(t, repo.rows[pair{1, 10}])
}

func TestGrantReactivatesSuspendedRow(t *testing.T) {
	repo := newMemoryRepo()
	repo.rows[pair{1, 10}] = false
	svc := newTestService(repo, []int64{1}, []int64{10})

	grant, outcome, err := svc.Grant(context.Background(), 1, 1, 10)
	require.NoError(t, err)
	require.Equal(t, OutcomeReactivated, outcome)
	require.True(t, grant.IsActive)
	require.Len(t, repo.rows, 1)
}

func TestGrantMissingParents(t *testing.T) {
	svc := newTestService(newMemoryRepo(), []int64{1}, []int64{10})
	ctx := context.Background()

	_, _, err := svc.Grant(ctx, 1, 99, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, _, err = svc.Grant(ctx, 1, 1, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	repo := newMemoryRepo()
	repo.rows[pair{1, 10}] = true
	svc := newTestService(repo, []int64{1}, []int64{10})
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, 1, 1, 10))
	require.Empty(t, repo.rows)

	err := svc.Revoke(ctx, 1, 1, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSuspendResume(t *testing.T) {
	repo := newMemoryRepo()
	repo.rows[pair{1, 10}] = true
	svc := newTestService(repo, []int64{1}, []int64{10})
	ctx := context.Background()

	require.NoError(t, svc.Suspend(ctx, 1, 1, 10))
	require.False(t, repo.rows[pair{1, 10}])

	require.NoError(t, svc.Resume(ctx, 1, 1, 10))
	require.True(t, repo.rows[pair{1, 10}])

	err := svc.Suspend(ctx, 1, 1, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReconcileSetDifference(t *testing.T) {
	repo := newMemoryRepo()
	// Current bound set: {2, 3, 4}. Row 3 is suspended to prove rows in
	// both sets are left untouched rather than deleted and recreated.
	repo.rows[pair{1, 2}] = true
	repo.rows[pair{1, 3}] = false
	repo.rows[pair{1, 4}] = true
	svc := newTestService(repo, []int64{1}, []int64{1, 2, 3, 4})

	result, err := svc.Reconcile(context.Background(), 1, 1, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)
	require.Equal(t, 1, result.Removed)
	require.Equal(t, 2, result.Unchanged)
	require.Empty(t, result.SkippedIDs)

	require.Len(t, repo.rows, 3)
	require.True(t, repo.rows[pair{1, 1}])
	require.True(t, repo.rows[pair{1, 2}])
	require.False(t, repo.rows[pair{1, 3}], "untouched row keeps its suspension flag")
	_, stillBound := repo.rows[pair{1, 4}]
	require.False(t, stillBound)
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, []int64{1}, []int64{1, 2, 3})
	ctx := context.Background()

	first, err := svc.Reconcile(ctx, 1, 1, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 3, first.Added)

	second, err := svc.Reconcile(ctx, 1, 1, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Zero(t, second.Added)
	require.Zero(t, second.Removed)
	require.Equal(t, 3, second.Unchanged)
}

func TestReconcileSkipsUnknownIDs(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, []int64{1}, []int64{1, 2})

	result, err := svc.Reconcile(context.Background(), 1, 1, []int64{1, 2, 777})
	require.NoError(t, err)
	require.Equal(t, 2, result.Added)
	require.Equal(t, []int64{777}, result.SkippedIDs)
	_, bogus := repo.rows[pair{1, 777}]
	require.False(t, bogus)
}

func TestReconcileMissingRole(t *testing.T) {
	svc := newTestService(newMemoryRepo(), []int64{1}, []int64{1})

	_, err := svc.Reconcile(context.Background(), 1, 99, []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
