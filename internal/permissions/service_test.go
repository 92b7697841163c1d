package permissions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystone-iam/keystone/internal/shared"
)

type memoryRepo struct {
	perms  map[int64]Permission
	grants map[string]int64 // "role:perm" -> permission id
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{perms: make(map[int64]Permission), grants: make(map[string]int64)}
}

func (r *memoryRepo) addGrant(roleID, permID int64) {
	r.grants[fmt.Sprintf("%d:%d", roleID, permID)] = permID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	permsBackup := make(map[int64]Permission, len(r.perms))
	for k, v := range r.perms {
		permsBackup[k] = v
	}
	grantsBackup := make(map[string]int64, len(r.grants))
	for k, v := range r.grants {
		grantsBackup[k] = v
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.perms = permsBackup
		r.grants = grantsBackup
		return err
	}
	return nil
}

func (r *memoryRepo) List(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range r.perms {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) ListByCategory(ctx context.Context, category string) ([]Permission, error) {
	var out []Permission
	for _, p := range r.perms {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Permission, error) {
	p, ok := r.perms[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var found []int64
	for _, id := range ids {
		if _, ok := r.perms[id]; ok {
			found = append(found, id)
		}
	}
	return found, nil
}

func (r *memoryRepo) Create(ctx context.Context, p Permission) (Permission, error) {
	for _, existing := range r.perms {
		if existing.SystemName == p.SystemName {
			return Permission{}, shared.ErrDuplicateKey
		}
	}
	r.nextID++
	p.ID = r.nextID
	r.perms[p.ID] = p
	return p, nil
}

func (r *memoryRepo) Update(ctx context.Context, p Permission) (Permission, error) {
	if _, ok := r.perms[p.ID]; !ok {
		return Permission{}, shared.ErrNotFound
	}
	for id, existing := range r.perms {
		if id != p.ID && existing.SystemName == p.SystemName {
			return Permission{}, shared.ErrDuplicateKey
		}
	}
	r.perms[p.ID] = p
	return p, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) DeleteGrantsForPermission(ctx context.Context, permissionID int64) (int64, error) {
	var removed int64
	for key, permID := range t.repo.grants {
		if permID == permissionID {
			delete(t.repo.grants, key)
			removed++
		}
	}
	return removed, nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	if _, ok := t.repo.perms[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.perms, id)
	return nil
}

func TestCreateRejectsDuplicateSystemName(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, Input{Name: "View tenants", SystemName: "view_tenants", IsActive: true})
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1, Input{Name: "View tenants again", SystemName: "view_tenants", IsActive: true})
	require.ErrorIs(t, err, shared.ErrDuplicateKey)
}

func TestSystemNameStoredLowercase(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, Input{Name: "Reports", SystemName: " Reports.View ", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "reports.view", created.SystemName)

	// Case-variant spellings collide on the same stored name.
	_, err = svc.Create(ctx, 1, Input{Name: "Reports again", SystemName: "REPORTS.VIEW", IsActive: true})
	require.ErrorIs(t, err, shared.ErrDuplicateKey)

	updated, err := svc.Update(ctx, 1, created.ID, Input{Name: "Reports", SystemName: "Reports.Export", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "reports.export", updated.SystemName)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil)

	_, err := svc.Create(context.Background(), 1, Input{Name: "No key"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, 1, Input{Name: "A", SystemName: "perm_a", IsActive: true})
	require.NoError(t, err)
	b, err := svc.Create(ctx, 1, Input{Name: "B", SystemName: "perm_b", IsActive: true})
	require.NoError(t, err)

	_, err = svc.Update(ctx, 1, 999, Input{Name: "missing", SystemName: "perm_x"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Claiming another permission's system name is a duplicate.
	_, err = svc.Update(ctx, 1, b.ID, Input{Name: "B", SystemName: a.SystemName})
	require.ErrorIs(t, err, shared.ErrDuplicateKey)

	// Keeping its own system name is fine.
	updated, err := svc.Update(ctx, 1, b.ID, Input{Name: "B renamed", SystemName: "perm_b", IsActive: false})
	require.NoError(t, err)
	require.Equal(t, "B renamed", updated.Name)
	require.False(t, updated.IsActive)
}

func TestDeleteCascadesGrants(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	p, err := svc.Create(ctx, 1, Input{Name: "Edit", SystemName: "edit_tenants", IsActive: true})
	require.NoError(t, err)
	repo.addGrant(10, p.ID)
	repo.addGrant(11, p.ID)

	require.NoError(t, svc.Delete(ctx, 1, p.ID))
	require.Empty(t, repo.grants)
	require.Empty(t, repo.perms)
}

func TestDeleteMissingPermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	err := svc.Delete(context.Background(), 1, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListByCategory(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, Input{Name: "A", Category: "tenants", SystemName: "a", IsActive: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, Input{Name: "B", Category: "billing", SystemName: "b", IsActive: true})
	require.NoError(t, err)

	perms, err := svc.ListByCategory(ctx, "tenants")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	require.Equal(t, "a", perms[0].SystemName)
}
