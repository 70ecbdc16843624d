package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"takeaway/internal/model"

	"gorm.io/gorm"
)

// ErrNotFound 查询的记录不存在。
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type AddressRepository interface {
	GetByID(ctx context.Context, id int64) (*model.AddressBook, error)
}

type CartRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]model.ShoppingCart, error)
	// DeleteByUser 返回实际删除的行数。
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

type OrderRepository interface {
	InsertHeader(ctx context.Context, o *model.Orders) error
	InsertLines(ctx context.Context, lines []model.OrderDetail) error
	PageByUser(ctx context.Context, userID int64, offset, limit int) ([]model.Orders, int64, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, ev *model.OrderEvent) error
	Due(ctx context.Context, now time.Time, maxAttempts, limit int) ([]model.OrderEvent, error)
	Delete(ctx context.Context, id uint) error
	Reschedule(ctx context.Context, id uint, retryCount int, lastError string, nextRetryAt time.Time) error
}

// Repositories 是一组绑定在同一个连接（或同一个事务）上的仓储。
type Repositories interface {
	Users() UserRepository
	Addresses() AddressRepository
	Carts() CartRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
}

// Store 持有 gorm 连接；Transaction 内拿到的 Repositories 全部走同一个事务。
type Store struct {
	db        *gorm.DB
	txOptions *sql.TxOptions
}

func New(db *gorm.DB) *Store {
	s := &Store{db: db}
	// postgres 显式使用读已提交；sqlite 只有串行化语义，不传隔离级别。
	if db.Dialector.Name() == DriverPostgres {
		s.txOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return s
}

func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Users() UserRepository { return &userRepo{db: s.db} }
func (s *Store) Addresses() AddressRepository { return &addressRepo{db: s.db} }
func (s *Store) Carts() CartRepository { return &cartRepo{db: s.db} }
func (s *Store) Orders() OrderRepository { return &orderRepo{db: s.db} }
func (s *Store) Outbox() OutboxRepository { return &outboxRepo{db: s.db} }

// Transaction 开启事务执行 fn：fn 返回错误或 panic 时整体回滚，否则提交。
func (s *Store) Transaction(ctx context.Context, fn func(repos Repositories) error) error {
	run := func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	}
	if s.txOptions != nil {
		return s.db.WithContext(ctx).Transaction(run, s.txOptions)
	}
	return s.db.WithContext(ctx).Transaction(run)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
