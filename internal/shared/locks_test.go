package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRoleLockerSerializes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRoleLocker(client)
	ctx := context.Background()

	release, err := locker.Lock(ctx, 7)
	require.NoError(t, err)

	// A second writer on the same role must wait and time out.
	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, 7)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	// A different role is not blocked.
	otherRelease, err := locker.Lock(ctx, 8)
	require.NoError(t, err)
	otherRelease()

	release()
	release2, err := locker.Lock(ctx, 7)
	require.NoError(t, err)
	release2()
}

func TestRoleLockerReleaseIsOwnerScoped(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewRoleLocker(client)
	ctx := context.Background()

	release, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	// Simulate lock expiry followed by another owner taking it.
	mr.FastForward(10 * time.Second)
	secondRelease, err := locker.Lock(ctx, 1)
	require.NoError(t, err)

	// The stale release must not free the new owner's lock.
	release()
	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(shortCtx, 1)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	secondRelease()
}
