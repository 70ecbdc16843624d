package model

import "github.com/shopspring/decimal"

// OrderDetail 订单明细，是下单时购物车行的快照，创建后不再修改。
type OrderDetail struct {
	ID         int64           `gorm:"primarykey" json:"id"`
	OrderID    uint64          `gorm:"not null;index" json:"order_id,string"`
	DishID     *int64          `json:"dish_id"`
	SetmealID  *int64          `json:"setmeal_id"`
	DishFlavor *string         `gorm:"size:50" json:"dish_flavor"`
	Number     int             `gorm:"not null" json:"number"`
	Amount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"` // 单价
	Name       string          `gorm:"size:64" json:"name"`
	Image      string          `gorm:"size:255" json:"image"`
}

func (OrderDetail) TableName() string { return "order_detail" }
