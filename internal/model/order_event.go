package model

import "time"

// OrderEvent 是订单事件的 outbox 行：与订单在同一事务内写入，由 relay 异步投递到 Kafka。
type OrderEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID uint64 `gorm:"not null;index" json:"order_id,string"`
	Key     string `gorm:"size:64;not null" json:"key"`
	Payload []byte `gorm:"not null" json:"payload"`
	// RetryCount + LastError + NextRetryAt 支撑失败重试与排查。
	RetryCount  int       `gorm:"not null;default:0" json:"retry_count"`
	LastError   string    `gorm:"size:255" json:"last_error"`
	NextRetryAt time.Time `gorm:"not null;index" json:"next_retry_at"`
}

func (OrderEvent) TableName() string { return "order_events" }
