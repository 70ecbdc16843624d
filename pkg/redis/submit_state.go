package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// SubmitPending 表示该幂等键的下单正在进行。
	SubmitPending = "pending"
	// SubmitSuccess 表示下单已完成，可直接回放结果。
	SubmitSuccess = "success"
)

// luaClaimSubmitKey 原子地“不存在则写入 pending 并设置过期”。
const luaClaimSubmitKey = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return 1
`

// SubmitState 对应 Redis 内某个幂等键的下单结果。
type SubmitState struct {
	Status  string
	OrderID string
	Number  string
	Amount  string
}

// ClaimSubmitKey 占用幂等键。claimed=false 时返回已有状态。
func ClaimSubmitKey(ctx context.Context, rdb *rd.Client, userID int64, idemKey string, ttl time.Duration) (SubmitState, bool, error) {
	key := SubmitIdempotencyKey(userID, idemKey)
	n, err := rdb.Eval(ctx, luaClaimSubmitKey, []string{key}, SubmitPending, ttl.Milliseconds()).Int()
	if err != nil {
		return SubmitState{}, false, err
	}
	if n == 1 {
		return SubmitState{Status: SubmitPending}, true, nil
	}
	st, _, err := GetSubmitState(ctx, rdb, userID, idemKey)
	return st, false, err
}

// GetSubmitState 查询幂等键当前状态。found=false 表示 key 不存在。
func GetSubmitState(ctx context.Context, rdb *rd.Client, userID int64, idemKey string) (SubmitState, bool, error) {
	m, err := rdb.HGetAll(ctx, SubmitIdempotencyKey(userID, idemKey)).Result()
	if err != nil {
		return SubmitState{}, false, err
	}
	if len(m) == 0 {
		return SubmitState{}, false, nil
	}
	out := SubmitState{
		Status:  m["status"],
		OrderID: m["order_id"],
		Number:  m["number"],
		Amount:  m["amount"],
	}
	if out.Status == "" {
		out.Status = SubmitPending
	}
	return out, true, nil
}

// PutSubmitState 写入下单结果，并刷新 key TTL。
func PutSubmitState(ctx context.Context, rdb *rd.Client, userID int64, idemKey string, st SubmitState, ttl time.Duration) error {
	key := SubmitIdempotencyKey(userID, idemKey)
	pipe := rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"status", st.Status,
		"order_id", st.OrderID,
		"number", st.Number,
		"amount", st.Amount,
	)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// ReleaseSubmitKey 下单失败时释放幂等键，允许客户端用同一个键重试。
func ReleaseSubmitKey(ctx context.Context, rdb *rd.Client, userID int64, idemKey string) error {
	return rdb.Del(ctx, SubmitIdempotencyKey(userID, idemKey)).Err()
}
