package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RoleLockKey builds redis keys for per-role critical sections.
func RoleLockKey(roleID int64) string {
	return fmt.Sprintf("rbac:role:%d:lock", roleID)
}

// ErrLockNotAcquired indicates the lock could not be taken before the context expired.
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the lock only when still held by the given owner token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RoleLocker serializes writers that mutate the same role's permission set.
type RoleLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewRoleLocker constructs a RoleLocker with sane defaults.
func NewRoleLocker(client *redis.Client) *RoleLocker {
	return &RoleLocker{client: client, ttl: 5 * time.Second, retry: 25 * time.Millisecond}
}

// Lock acquires the per-role mutex, retrying until the context expires.
// The returned function releases the lock and must be called exactly once.
func (l *RoleLocker) Lock(ctx context.Context, roleID int64) (func(), error) {
	key := RoleLockKey(roleID)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockNotAcquired
		case <-time.After(l.retry):
		}
	}
}
