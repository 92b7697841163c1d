package assignments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keystone-iam/keystone/internal/roles"
	"github.com/keystone-iam/keystone/internal/shared"
)

type pair struct {
	userID int64
	roleID int64
}

type memoryRepo struct {
	nextID int64
	rows   map[pair]Assignment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, rows: make(map[pair]Assignment)}
}

func (r *memoryRepo) Get(ctx context.Context, userID, roleID int64) (Assignment, error) {
	a, ok := r.rows[pair{userID, roleID}]
	if !ok {
		return Assignment{}, shared.ErrNotFound
	}
	return a, nil
}

func (r *memoryRepo) ListForUser(ctx context.Context, userID int64) ([]AssignmentDetail, error) {
	var details []AssignmentDetail
	for p, a := range r.rows {
		if p.userID == userID {
			details = append(details, AssignmentDetail{
				ID: a.ID, UserID: a.UserID, RoleID: a.RoleID, AssignedAt: a.AssignedAt,
			})
		}
	}
	return details, nil
}

func (r *memoryRepo) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	key := pair{a.UserID, a.RoleID}
	if _, exists := r.rows[key]; exists {
		return Assignment{}, shared.ErrDuplicateKey
	}
	a.ID = r.nextID
	r.nextID++
	r.rows[key] = a
	return a, nil
}

func (r *memoryRepo) Delete(ctx context.Context, userID, roleID int64) error {
	key := pair{userID, roleID}
	if _, ok := r.rows[key]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rows, key)
	return nil
}

type stubUsers struct {
	existing map[int64]bool
}

func (s *stubUsers) Exists(ctx context.Context, id int64) (bool, error) {
	return s.existing[id], nil
}

type stubRoles struct {
	existing map[int64]bool
}

func (s *stubRoles) Get(ctx context.Context, id int64) (roles.Role, error) {
	if !s.existing[id] {
		return roles.Role{}, shared.ErrNotFound
	}
	return roles.Role{ID: id, Name: "Operator", IsActive: true}, nil
}

func newTestService(repo *memoryRepo, userIDs, roleIDs []int64) *Service {
	users := make(map[int64]bool)
	for _, id := range userIDs {
		users[id] = true
	}
	rolesSet := make(map[int64]bool)
	for _, id := range roleIDs {
		rolesSet[id] = true
	}
	return NewService(repo, &stubUsers{existing: users}, &stubRoles{existing: rolesSet}, nil, nil)
}

func TestAssignIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, []int64{5}, []int64{1})
	ctx := context.Background()

	first, created, err := svc.Assign(ctx, 1, 5, 1)
	require.NoError(t, err)
	require.True(t, created)
	require.False(t, first.AssignedAt.IsZero())

	time.Sleep(time.Millisecond)

	second, created, err := svc.Assign(ctx, 1, 5, 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.AssignedAt, second.AssignedAt, "existing row is returned untouched")
	require.Len(t, repo.rows, 1)
}

func TestAssignMissingParents(t *testing.T) {
	svc := newTestService(newMemoryRepo(), []int64{5}, []int64{1})
	ctx := context.Background()

	_, _, err := svc.Assign(ctx, 1, 99, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, _, err = svc.Assign(ctx, 1, 5, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemove(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, []int64{5}, []int64{1})
	ctx := context.Background()

	_, _, err := svc.Assign(ctx, 1, 5, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, 1, 5, 1))
	require.Empty(t, repo.rows)

	err = svc.Remove(ctx, 1, 5, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListForUserUnknownUser(t *testing.T) {
	svc := newTestService(newMemoryRepo(), []int64{5}, nil)

	_, err := svc.ListForUser(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
