package queue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderMessage 是写入 Kafka 的“订单已提交”事件，也是 outbox 行的 payload。
type OrderMessage struct {
	OrderID   uint64    `json:"order_id,string"`
	Number    string    `json:"number"`
	UserID    int64     `json:"user_id"`
	Amount    string    `json:"amount"` // 元，两位小数
	Status    int       `json:"status"`
	Lines     int       `json:"lines"`
	OrderTime time.Time `json:"order_time"`
}

// Validate 做最小字段校验，防止 relay 投递脏消息。
func (m OrderMessage) Validate() error {
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.Number == "" {
		return fmt.Errorf("number is required")
	}
	if m.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if m.Lines <= 0 {
		return fmt.Errorf("lines must be > 0")
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q", m.Amount)
	}
	if amount.IsNegative() {
		return fmt.Errorf("amount must be >= 0")
	}
	return nil
}
