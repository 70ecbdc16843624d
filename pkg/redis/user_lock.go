package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch 仅当锁值匹配 token 时才删除，避免误删新持有者的锁。
const luaReleaseIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// UserLocker 用 SET NX PX 实现同一用户同一时刻只有一个下单流程。
// TTL 兜底：进程崩溃时锁最多保留 ttl。
type UserLocker struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewUserLocker(rdb *rd.Client, ttl time.Duration) *UserLocker {
	return &UserLocker{rdb: rdb, ttl: ttl}
}

// TryLock 尝试占用用户锁，不等待。锁已被占用时返回 ok=false。
func (l *UserLocker) TryLock(ctx context.Context, userID int64) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, UserSubmitLockKey(userID), token, l.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func(ctx context.Context) error {
		return ReleaseUserLockIfMatch(ctx, l.rdb, userID, token)
	}
	return unlock, true, nil
}

// ReleaseUserLockIfMatch 安全释放用户占位锁。
func ReleaseUserLockIfMatch(ctx context.Context, rdb *rd.Client, userID int64, token string) error {
	lockKey := UserSubmitLockKey(userID)
	_, err := rdb.Eval(ctx, luaReleaseIfMatch, []string{lockKey}, token).Int()
	return err
}
