package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

var (
	// ErrNoFreeNode 所有节点号都被在线进程占用。
	ErrNoFreeNode = errors.New("no free snowflake node id")
	// ErrLeaseLost 续约时发现节点号已不属于本进程（过期后被他人占用或被删除）。
	ErrLeaseLost = errors.New("snowflake node lease lost")
)

// luaRenewIfMatch 仅当 key 仍属于 token 时才续期。
const luaRenewIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// NodeLease 是一个带 TTL 的雪花节点号占用。进程在线期间需持续 Keep 续约，退出时 Release。
type NodeLease struct {
	rdb    *rd.Client
	nodeID int64
	token  string
	ttl    time.Duration
}

// LeaseNodeID 为当前进程占用一个空闲的雪花节点号，结果落在 [0, size)。
// INCR 计数器只作为扫描起点，使各进程分散开；真正的占用是 SET NX PX，
// 仍被持有的节点号不会再分配出去。全部占满时返回 ErrNoFreeNode。
func LeaseNodeID(ctx context.Context, rdb *rd.Client, size int64, ttl time.Duration) (*NodeLease, error) {
	if size <= 0 {
		return nil, fmt.Errorf("node id space must be > 0, got %d", size)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("node lease ttl must be > 0, got %s", ttl)
	}
	hint, err := rdb.Incr(ctx, NodeSeqKey).Result()
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	start := (hint - 1) % size
	for i := int64(0); i < size; i++ {
		n := (start + i) % size
		ok, err := rdb.SetNX(ctx, NodeSlotKey(n), token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &NodeLease{rdb: rdb, nodeID: n, token: token, ttl: ttl}, nil
		}
	}
	return nil, ErrNoFreeNode
}

// NodeID 本进程持有的节点号。
func (l *NodeLease) NodeID() int64 { return l.nodeID }

// Renew 续期一次。节点号已不属于本进程时返回 ErrLeaseLost。
func (l *NodeLease) Renew(ctx context.Context) error {
	n, err := l.rdb.Eval(ctx, luaRenewIfMatch, []string{NodeSlotKey(l.nodeID)}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Keep 每隔 every 续期一次，直到 ctx 结束（返回 nil）或租约丢失（返回 ErrLeaseLost）。
// 单次续期的网络错误会在下一轮重试，只要 TTL 内有一次成功即可。
func (l *NodeLease) Keep(ctx context.Context, every time.Duration, onError func(error)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		err := l.Renew(ctx)
		if errors.Is(err, ErrLeaseLost) {
			return err
		}
		if err != nil && ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}
}

// Release 释放节点号，仅当仍由本进程持有时才删除。
func (l *NodeLease) Release(ctx context.Context) error {
	_, err := l.rdb.Eval(ctx, luaReleaseIfMatch, []string{NodeSlotKey(l.nodeID)}, l.token).Int()
	return err
}
