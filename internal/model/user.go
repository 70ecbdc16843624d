package model

// User 下单用户，本服务只读取展示名。
type User struct {
	ID     int64  `gorm:"primarykey" json:"id"`
	Name   string `gorm:"size:64" json:"name"`
	Phone  string `gorm:"size:32;index" json:"phone"`
	Status int    `gorm:"not null;default:1" json:"status"` // 0 禁用 1 正常
}

func (User) TableName() string { return "user" }
