package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"takeaway/internal/idgen"
	"takeaway/internal/lock"
	"takeaway/internal/model"
	"takeaway/internal/queue"
	"takeaway/internal/service/order"
	"takeaway/internal/store"
	"takeaway/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, db *gorm.DB, opts ...order.Option) *order.Service {
	t.Helper()
	gen, err := idgen.New(1)
	require.NoError(t, err)
	base := []order.Option{
		order.WithLogger(quietLogger()),
		order.WithClock(func() time.Time { return fixedNow }),
	}
	return order.New(store.New(db), gen, append(base, opts...)...)
}

// seedCustomer 建一个用户、一条属于他的地址和示例购物车（2 行，合计 33.00）。
func seedCustomer(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	storetest.SeedUser(t, db, userID, "U"+strconv.FormatInt(userID, 10))
	addr := storetest.SeedAddress(t, db, model.AddressBook{
		UserID:       userID,
		Consignee:    "A",
		Phone:        "555",
		ProvinceName: storetest.StrPtr("CA"),
		CityName:     storetest.StrPtr("LA"),
		Detail:       storetest.StrPtr("Main St"),
	})
	storetest.SeedCartLine(t, db, userID, 7, 2, "12.50")
	storetest.SeedCartLine(t, db, userID, 9, 1, "8.00")
	return addr.ID
}

func loadOrder(t *testing.T, db *gorm.DB, id uint64) model.Orders {
	t.Helper()
	var o model.Orders
	require.NoError(t, db.Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&o, id).Error)
	return o
}

func countCart(t *testing.T, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&model.ShoppingCart{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func assertNothingWritten(t *testing.T, db *gorm.DB) {
	t.Helper()
	assert.Zero(t, storetest.Count(t, db, &model.Orders{}))
	assert.Zero(t, storetest.Count(t, db, &model.OrderDetail{}))
	assert.Zero(t, storetest.Count(t, db, &model.OrderEvent{}))
}

func TestSubmit_ExampleScenario(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	svc := newService(t, db)

	receipt, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID, Remark: "no chili", PayMethod: 2})
	require.NoError(t, err)

	assert.True(t, receipt.Amount.Equal(decimal.RequireFromString("33.00")), "amount %s", receipt.Amount)
	assert.Equal(t, 2, receipt.Lines)
	assert.Equal(t, strconv.FormatUint(receipt.OrderID, 10), receipt.Number)

	o := loadOrder(t, db, receipt.OrderID)
	assert.Equal(t, receipt.Number, o.Number)
	assert.Equal(t, strconv.FormatUint(o.ID, 10), o.Number, "order number is the string form of the id")
	assert.True(t, o.Amount.Equal(decimal.RequireFromString("33")), "stored amount %s", o.Amount)
	assert.Equal(t, "CALAMain St", o.Address)
	assert.Equal(t, model.OrderStatusToBeConfirmed, o.Status)
	assert.Equal(t, "A", o.Consignee)
	assert.Equal(t, "555", o.Phone)
	assert.Equal(t, "U1", o.UserName)
	assert.Equal(t, int64(1), o.UserID)
	assert.Equal(t, addrID, o.AddressBookID)
	assert.Equal(t, "no chili", o.Remark)
	assert.Equal(t, 2, o.PayMethod)
	assert.True(t, o.OrderTime.Equal(fixedNow))
	assert.True(t, o.CheckoutTime.Equal(o.OrderTime))

	require.Len(t, o.Details, 2)
	assert.Equal(t, int64(7), *o.Details[0].DishID)
	assert.Equal(t, 2, o.Details[0].Number)
	assert.True(t, o.Details[0].Amount.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, "dish-7", o.Details[0].Name)
	assert.Equal(t, "dish-7.png", o.Details[0].Image)
	assert.Equal(t, int64(9), *o.Details[1].DishID)
	for _, d := range o.Details {
		assert.Equal(t, o.ID, d.OrderID)
	}

	assert.Zero(t, countCart(t, db, 1))
}

func TestSubmit_WritesOrderEvent(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	receipt, err := newService(t, db).Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.NoError(t, err)

	var events []model.OrderEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, receipt.OrderID, events[0].OrderID)
	assert.Equal(t, receipt.Number, events[0].Key)

	var msg queue.OrderMessage
	require.NoError(t, json.Unmarshal(events[0].Payload, &msg))
	require.NoError(t, msg.Validate())
	assert.Equal(t, receipt.OrderID, msg.OrderID)
	assert.Equal(t, "33.00", msg.Amount)
	assert.Equal(t, 2, msg.Lines)
	assert.Equal(t, int(model.OrderStatusToBeConfirmed), msg.Status)
}

func TestSubmit_EmptyCart(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedUser(t, db, 1, "U1")
	addr := storetest.SeedAddress(t, db, model.AddressBook{UserID: 1, Consignee: "A", Phone: "555"})

	_, err := newService(t, db).Submit(context.Background(), 1, order.Draft{AddressBookID: addr.ID})
	require.ErrorIs(t, err, order.ErrEmptyCart)
	assert.True(t, order.IsUserCorrectable(err))
	assertNothingWritten(t, db)
}

func TestSubmit_AddressNotFound(t *testing.T) {
	db := storetest.Open(t)
	seedCustomer(t, db, 1)
	otherAddr := seedCustomer(t, db, 2)
	svc := newService(t, db)

	_, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: 999})
	require.ErrorIs(t, err, order.ErrAddressNotFound)
	assert.True(t, order.IsUserCorrectable(err))

	_, err = svc.Submit(context.Background(), 1, order.Draft{AddressBookID: otherAddr})
	require.ErrorIs(t, err, order.ErrAddressNotFound, "another user's address is not visible")

	assertNothingWritten(t, db)
	assert.Equal(t, int64(2), countCart(t, db, 1))
}

func TestSubmit_UserNotFound(t *testing.T) {
	db := storetest.Open(t)

	_, err := newService(t, db).Submit(context.Background(), 42, order.Draft{AddressBookID: 1})
	require.ErrorIs(t, err, order.ErrUserNotFound)
	assert.True(t, order.IsUserCorrectable(err))
}

func TestSubmit_LineInsertFailureRollsBack(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)

	boom := errors.New("disk full")
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_order_detail", func(tx *gorm.DB) {
		if tx.Statement.Table == "order_detail" {
			_ = tx.AddError(boom)
		}
	}))

	_, err := newService(t, db).Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.ErrorIs(t, err, order.ErrPersistence)
	require.ErrorIs(t, err, boom)
	assert.False(t, order.IsUserCorrectable(err))

	assertNothingWritten(t, db)
	assert.Equal(t, int64(2), countCart(t, db, 1), "cart must survive a failed submission")
}

type failingIDs struct{}

func (failingIDs) NextID(context.Context) (uint64, error) {
	return 0, idgen.ErrClockRegression
}

func TestSubmit_IdentityFailure(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	svc := order.New(store.New(db), failingIDs{}, order.WithLogger(quietLogger()))

	_, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.ErrorIs(t, err, order.ErrIdentityGeneration)
	require.ErrorIs(t, err, idgen.ErrClockRegression)
	assert.False(t, order.IsUserCorrectable(err))

	assertNothingWritten(t, db)
	assert.Equal(t, int64(2), countCart(t, db, 1))
}

// extraRowStore 让 DeleteByUser 报告多删了一行，模拟读后购物车被并发修改。
type extraRowStore struct{ *store.Store }

func (s extraRowStore) Transaction(ctx context.Context, fn func(store.Repositories) error) error {
	return s.Store.Transaction(ctx, func(r store.Repositories) error {
		return fn(extraRowRepos{r})
	})
}

type extraRowRepos struct{ store.Repositories }

func (r extraRowRepos) Carts() store.CartRepository { return extraRowCart{r.Repositories.Carts()} }

type extraRowCart struct{ store.CartRepository }

func (c extraRowCart) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	n, err := c.CartRepository.DeleteByUser(ctx, userID)
	return n + 1, err
}

func TestSubmit_CartChangedRollsBack(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	gen, err := idgen.New(1)
	require.NoError(t, err)
	svc := order.New(extraRowStore{store.New(db)}, gen, order.WithLogger(quietLogger()))

	_, err = svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.ErrorIs(t, err, order.ErrCartChanged)

	assertNothingWritten(t, db)
	assert.Equal(t, int64(2), countCart(t, db, 1))
}

func TestSubmit_ConfigurableStatus(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	svc := newService(t, db, order.WithSubmittedStatus(model.OrderStatusPendingPayment))

	receipt, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPendingPayment, loadOrder(t, db, receipt.OrderID).Status)
}

func TestSubmit_ZeroQuantityLineAddsNothing(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	zero := storetest.SeedCartLine(t, db, 1, 11, 1, "99.90")
	require.NoError(t, db.Model(&zero).Update("number", 0).Error)

	receipt, err := newService(t, db).Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.NoError(t, err)
	assert.True(t, receipt.Amount.Equal(decimal.RequireFromString("33.00")), "amount %s", receipt.Amount)
	assert.Equal(t, 3, receipt.Lines)
}

func TestSubmit_ExactDecimalTotal(t *testing.T) {
	db := storetest.Open(t)
	storetest.SeedUser(t, db, 1, "U1")
	addr := storetest.SeedAddress(t, db, model.AddressBook{UserID: 1, Consignee: "A", Phone: "555"})
	// 0.1 + 0.2 在二进制浮点下不等于 0.3
	storetest.SeedCartLine(t, db, 1, 1, 1, "0.10")
	storetest.SeedCartLine(t, db, 1, 2, 1, "0.20")
	storetest.SeedCartLine(t, db, 1, 3, 3, "0.33")

	receipt, err := newService(t, db).Submit(context.Background(), 1, order.Draft{AddressBookID: addr.ID})
	require.NoError(t, err)
	assert.Equal(t, "1.29", receipt.Amount.StringFixed(2))
	assert.True(t, receipt.Amount.Equal(decimal.RequireFromString("1.29")))
}

func TestSubmit_IgnoresCallerCancellation(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	receipt, err := newService(t, db).Submit(ctx, 1, order.Draft{AddressBookID: addrID})
	require.NoError(t, err)
	assert.NotZero(t, receipt.OrderID)
	assert.Zero(t, countCart(t, db, 1))
}

func TestSubmit_DifferentUsersInParallel(t *testing.T) {
	db := storetest.Open(t)
	const users = 8
	addrs := make(map[int64]int64, users)
	for u := int64(1); u <= users; u++ {
		addrs[u] = seedCustomer(t, db, u)
	}
	svc := newService(t, db, order.WithLocker(lock.NewLocal()))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		receipts = make(map[int64]order.Receipt, users)
		errs     []error
	)
	for u := int64(1); u <= users; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			r, err := svc.Submit(context.Background(), userID, order.Draft{AddressBookID: addrs[userID]})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			receipts[userID] = r
		}(u)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, receipts, users)
	seen := make(map[uint64]bool, users)
	for userID, r := range receipts {
		assert.False(t, seen[r.OrderID], "duplicate order id %d", r.OrderID)
		seen[r.OrderID] = true
		assert.Equal(t, userID, loadOrder(t, db, r.OrderID).UserID)
		assert.Zero(t, countCart(t, db, userID))
	}
	assert.Equal(t, int64(users), storetest.Count(t, db, &model.Orders{}))
	assert.Equal(t, int64(users*2), storetest.Count(t, db, &model.OrderDetail{}))
}

func TestSubmit_SameUserConcurrentProducesOneOrder(t *testing.T) {
	cases := []struct {
		name string
		opts []order.Option
	}{
		{"with user lock", []order.Option{order.WithLocker(lock.NewLocal())}},
		{"cart row check only", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := storetest.Open(t)
			addrID := seedCustomer(t, db, 1)
			svc := newService(t, db, tc.opts...)

			const attempts = 10
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				ok    int
				other []error
				start = make(chan struct{})
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						ok++
						return
					}
					other = append(other, err)
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, ok)
			for _, err := range other {
				assert.True(t, order.IsUserCorrectable(err), "unexpected error: %v", err)
			}
			assert.Equal(t, int64(1), storetest.Count(t, db, &model.Orders{}))
			assert.Equal(t, int64(2), storetest.Count(t, db, &model.OrderDetail{}))
		})
	}
}

type stubLocker struct {
	ok       bool
	err      error
	released bool
}

func (l *stubLocker) TryLock(context.Context, int64) (func(context.Context) error, bool, error) {
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, true, nil
}

func TestSubmit_LockBusy(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	svc := newService(t, db, order.WithLocker(&stubLocker{ok: false}))

	_, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.ErrorIs(t, err, order.ErrSubmitInProgress)
	assert.True(t, order.IsUserCorrectable(err))
	assertNothingWritten(t, db)
	assert.Equal(t, int64(2), countCart(t, db, 1))
}

func TestSubmit_LockReleasedAfterSubmit(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	l := &stubLocker{ok: true}

	_, err := newService(t, db, order.WithLocker(l)).Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.NoError(t, err)
	assert.True(t, l.released)
}

func TestSubmit_LockUnavailableFallsBackToCartCheck(t *testing.T) {
	db := storetest.Open(t)
	addrID := seedCustomer(t, db, 1)
	svc := newService(t, db, order.WithLocker(&stubLocker{err: errors.New("connection refused")}))

	_, err := svc.Submit(context.Background(), 1, order.Draft{AddressBookID: addrID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), storetest.Count(t, db, &model.Orders{}))
}
