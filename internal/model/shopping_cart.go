package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShoppingCart 购物车中的一行：菜品或套餐二选一，口味可选。
// 没有软删除字段，下单成功后整行物理删除。
type ShoppingCart struct {
	ID         int64           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UserID     int64           `gorm:"not null;index" json:"user_id"`
	DishID     *int64          `json:"dish_id"`
	SetmealID  *int64          `json:"setmeal_id"`
	DishFlavor *string         `gorm:"size:50" json:"dish_flavor"`
	Number     int             `gorm:"not null;default:1" json:"number"`
	Amount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"` // 单价
	Name       string          `gorm:"size:64" json:"name"`
	Image      string          `gorm:"size:255" json:"image"`
}

func (ShoppingCart) TableName() string { return "shopping_cart" }

// Subtotal 单价 × 数量。
func (c ShoppingCart) Subtotal() decimal.Decimal {
	return c.Amount.Mul(decimal.NewFromInt(int64(c.Number)))
}
