// Package lock 提供进程内的按用户互斥，用于单实例部署或未配置 Redis 的场景。
package lock

import (
	"context"
	"sync"
)

// Local 记录当前正在下单的用户。只能约束同一进程内的请求。
type Local struct {
	mu   sync.Mutex
	held map[int64]uint64
	seq  uint64
}

func NewLocal() *Local {
	return &Local{held: make(map[int64]uint64)}
}

// TryLock 不等待；用户已被占用时返回 ok=false。
// 返回的 unlock 只释放本次获得的锁，重复调用无副作用。
func (l *Local) TryLock(_ context.Context, userID int64) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[userID]; busy {
		return nil, false, nil
	}
	l.seq++
	token := l.seq
	l.held[userID] = token

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[userID] == token {
			delete(l.held, userID)
		}
		return nil
	}
	return unlock, true, nil
}
