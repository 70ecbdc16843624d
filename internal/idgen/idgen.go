// Package idgen 生成 64 位、按时间递增的订单号。
//
// 采用雪花算法：毫秒时间戳 + 10 位节点号 + 12 位毫秒内序列。
// 跨进程唯一依赖每个进程持有不同的节点号（见 pkg/redis 的节点租约）。
package idgen

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// MaxNodeID New 接受的最大节点号。
const MaxNodeID = 1<<10 - 1

var ErrClockRegression = errors.New("idgen: clock moved backwards")

// Generator 可并发使用。
type Generator struct {
	node *snowflake.Node

	mu   sync.Mutex
	last int64
}

func New(nodeID int64) (*Generator, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("idgen: node id %d out of range [0, %d]", nodeID, MaxNodeID)
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("idgen: %w", err)
	}
	return &Generator{node: node}, nil
}

// NextID 返回严格大于此前所有返回值的 ID。
// 当前毫秒序列用尽时，底层节点会等到下一毫秒。
func (g *Generator) NextID(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.node.Generate().Int64()
	if id <= g.last {
		return 0, fmt.Errorf("%w: generated %d after %d", ErrClockRegression, id, g.last)
	}
	g.last = id
	return uint64(id), nil
}
