// Package order 实现下单核心：把购物车原子地转成订单头 + 订单明细，并清空购物车。
package order

import (
	"context"
	"log/slog"
	"time"

	"takeaway/internal/model"
	"takeaway/internal/store"
)

// Store 是下单所需的持久化能力；*store.Store 满足该接口。
type Store interface {
	Transaction(ctx context.Context, fn func(repos store.Repositories) error) error
	Orders() store.OrderRepository
}

// IDGenerator 生成全局唯一、单调递增的订单号。
type IDGenerator interface {
	NextID(ctx context.Context) (uint64, error)
}

// Locker 按用户互斥。TryLock 不等待，锁被占用时返回 ok=false。
type Locker interface {
	TryLock(ctx context.Context, userID int64) (unlock func(context.Context) error, ok bool, err error)
}

const defaultSubmitTimeout = 10 * time.Second

type Service struct {
	store   Store
	ids     IDGenerator
	locker  Locker
	status  model.OrderStatus
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

// WithLocker 启用按用户互斥；未设置时只依赖购物车行数校验。
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithSubmittedStatus 覆盖下单成功时写入的状态。
func WithSubmittedStatus(st model.OrderStatus) Option {
	return func(s *Service) { s.status = st }
}

// WithTimeout 单次下单的存储超时。
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, ids IDGenerator, opts ...Option) *Service {
	s := &Service{
		store:   st,
		ids:     ids,
		status:  model.OrderStatusToBeConfirmed,
		timeout: defaultSubmitTimeout,
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
