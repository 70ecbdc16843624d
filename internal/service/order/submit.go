package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"takeaway/internal/model"
	"takeaway/internal/queue"
	"takeaway/internal/store"

	"github.com/shopspring/decimal"
)

// Draft 是客户端提交的订单草稿，其余字段一律忽略。
type Draft struct {
	AddressBookID int64
	Remark        string
	PayMethod     int
}

// Receipt 下单成功的回执。Number 与 OrderID 是同一个值的字符串形式。
type Receipt struct {
	OrderID uint64
	Number  string
	Amount  decimal.Decimal
	Lines   int
}

// Submit 为 requesterID 下单：读取购物车，生成订单头与明细，清空购物车，
// 写入 outbox 事件，全部在同一个事务里完成。
//
// 一旦开始，调用方的取消不会中断下单，只有自身超时生效。
func (s *Service) Submit(ctx context.Context, requesterID int64, draft Draft) (Receipt, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, requesterID)
		switch {
		case err != nil:
			// 锁服务不可用时降级，购物车行数校验仍能挡住重复下单。
			s.log.Warn("user lock unavailable", "user_id", requesterID, "error", err)
		case !ok:
			return Receipt{}, ErrSubmitInProgress
		default:
			defer func() {
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("user lock release failed", "user_id", requesterID, "error", err)
				}
			}()
		}
	}

	var receipt Receipt
	err := s.store.Transaction(ctx, func(repos store.Repositories) error {
		r, err := s.place(ctx, repos, requesterID, draft)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		err = classify(err)
		if IsUserCorrectable(err) {
			s.log.Info("order rejected", "user_id", requesterID, "error", err)
		} else {
			s.log.Error("order submit failed", "user_id", requesterID, "error", err)
		}
		return Receipt{}, err
	}

	s.log.Info("order submitted",
		"order_id", receipt.OrderID,
		"user_id", requesterID,
		"amount", receipt.Amount.StringFixed(2),
		"lines", receipt.Lines,
	)
	return receipt, nil
}

func (s *Service) place(ctx context.Context, repos store.Repositories, userID int64, draft Draft) (Receipt, error) {
	user, err := repos.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Receipt{}, ErrUserNotFound
	}
	if err != nil {
		return Receipt{}, persistence(fmt.Errorf("load user: %w", err))
	}

	cart, err := repos.Carts().ListByUser(ctx, userID)
	if err != nil {
		return Receipt{}, persistence(fmt.Errorf("load cart: %w", err))
	}
	if len(cart) == 0 {
		return Receipt{}, ErrEmptyCart
	}

	addr, err := repos.Addresses().GetByID(ctx, draft.AddressBookID)
	if errors.Is(err, store.ErrNotFound) {
		return Receipt{}, ErrAddressNotFound
	}
	if err != nil {
		return Receipt{}, persistence(fmt.Errorf("load address: %w", err))
	}
	// 别人的地址按不存在处理，不泄露其存在性。
	if addr.UserID != userID {
		return Receipt{}, ErrAddressNotFound
	}

	id, err := s.ids.NextID(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %w", ErrIdentityGeneration, err)
	}

	lines, amount := buildLines(id, cart)
	now := s.now()
	header := &model.Orders{
		ID:            id,
		Number:        strconv.FormatUint(id, 10),
		Status:        s.status,
		UserID:        userID,
		AddressBookID: addr.ID,
		OrderTime:     now,
		CheckoutTime:  now,
		PayMethod:     draft.PayMethod,
		Amount:        amount,
		Remark:        draft.Remark,
		Phone:         addr.Phone,
		Address:       addr.FullAddress(),
		UserName:      user.Name,
		Consignee:     addr.Consignee,
	}
	if header.PayMethod == 0 {
		header.PayMethod = 1
	}

	if err := repos.Orders().InsertHeader(ctx, header); err != nil {
		return Receipt{}, persistence(fmt.Errorf("insert order: %w", err))
	}
	if err := repos.Orders().InsertLines(ctx, lines); err != nil {
		return Receipt{}, persistence(fmt.Errorf("insert order lines: %w", err))
	}

	deleted, err := repos.Carts().DeleteByUser(ctx, userID)
	if err != nil {
		return Receipt{}, persistence(fmt.Errorf("clear cart: %w", err))
	}
	// 读到的行必须被本事务全部删掉，否则说明有并发下单或购物车被改动。
	if deleted != int64(len(cart)) {
		return Receipt{}, ErrCartChanged
	}

	ev, err := orderEvent(header, len(lines))
	if err != nil {
		return Receipt{}, persistence(err)
	}
	if err := repos.Outbox().Insert(ctx, ev); err != nil {
		return Receipt{}, persistence(fmt.Errorf("insert order event: %w", err))
	}

	return Receipt{
		OrderID: id,
		Number:  header.Number,
		Amount:  amount,
		Lines:   len(lines),
	}, nil
}

// buildLines 按购物车行生成订单明细，并用十进制精确累加总金额。
func buildLines(orderID uint64, cart []model.ShoppingCart) ([]model.OrderDetail, decimal.Decimal) {
	amount := decimal.Zero
	lines := make([]model.OrderDetail, 0, len(cart))
	for _, c := range cart {
		lines = append(lines, model.OrderDetail{
			OrderID:    orderID,
			DishID:     c.DishID,
			SetmealID:  c.SetmealID,
			DishFlavor: c.DishFlavor,
			Number:     c.Number,
			Amount:     c.Amount,
			Name:       c.Name,
			Image:      c.Image,
		})
		amount = amount.Add(c.Subtotal())
	}
	return lines, amount
}

func orderEvent(o *model.Orders, lines int) (*model.OrderEvent, error) {
	payload, err := json.Marshal(queue.OrderMessage{
		OrderID:   o.ID,
		Number:    o.Number,
		UserID:    o.UserID,
		Amount:    o.Amount.StringFixed(2),
		Status:    int(o.Status),
		Lines:     lines,
		OrderTime: o.OrderTime,
	})
	if err != nil {
		return nil, fmt.Errorf("encode order event: %w", err)
	}
	return &model.OrderEvent{OrderID: o.ID, Key: o.Number, Payload: payload}, nil
}
