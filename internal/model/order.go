package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态。下单流程只负责写入初始状态，后续流转不在本服务内。
type OrderStatus int

const (
	OrderStatusPendingPayment OrderStatus = iota + 1 // 待付款
	OrderStatusToBeConfirmed                         // 待确认（下单默认）
	OrderStatusConfirmed                             // 已确认
	OrderStatusDelivering                            // 派送中
	OrderStatusCompleted                             // 已完成
	OrderStatusCancelled                             // 已取消
)

var orderStatusNames = map[OrderStatus]string{
	OrderStatusPendingPayment: "pending_payment",
	OrderStatusToBeConfirmed:  "to_be_confirmed",
	OrderStatusConfirmed:      "confirmed",
	OrderStatusDelivering:     "delivering",
	OrderStatusCompleted:      "completed",
	OrderStatusCancelled:      "cancelled",
}

func (s OrderStatus) Valid() bool {
	_, ok := orderStatusNames[s]
	return ok
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("OrderStatus(%d)", int(s))
}

// Orders 订单头。ID 由雪花算法生成，Number 是同一个值的字符串形式。
type Orders struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Number        string          `gorm:"size:50;uniqueIndex;not null" json:"number"`
	Status        OrderStatus     `gorm:"not null;default:1;index" json:"status"`
	UserID        int64           `gorm:"not null;index" json:"user_id"`
	AddressBookID int64           `gorm:"not null" json:"address_book_id"`
	OrderTime     time.Time       `gorm:"not null;index" json:"order_time"`
	CheckoutTime  time.Time       `gorm:"not null" json:"checkout_time"`
	PayMethod     int             `gorm:"not null;default:1" json:"pay_method"` // 1 微信 2 支付宝
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Remark        string          `gorm:"size:100" json:"remark"`
	Phone         string          `gorm:"size:32" json:"phone"`
	Address       string          `gorm:"size:255" json:"address"`
	UserName      string          `gorm:"size:64" json:"user_name"`
	Consignee     string          `gorm:"size:64" json:"consignee"`

	Details []OrderDetail `gorm:"foreignKey:OrderID" json:"details,omitempty"`
}

func (Orders) TableName() string { return "orders" }
