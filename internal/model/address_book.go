package model

import "time"

// AddressBook 用户地址簿中的一条收货地址。
// 省/市/区名称允许为空，拼接时按空串处理。
type AddressBook struct {
	ID           int64     `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       int64     `gorm:"not null;index" json:"user_id"`
	Consignee    string    `gorm:"size:64;not null" json:"consignee"`
	Phone        string    `gorm:"size:32;not null" json:"phone"`
	ProvinceName *string   `gorm:"size:32" json:"province_name"`
	CityName     *string   `gorm:"size:32" json:"city_name"`
	DistrictName *string   `gorm:"size:32" json:"district_name"`
	Detail       *string   `gorm:"size:200" json:"detail"`
	Label        string    `gorm:"size:32" json:"label"`
	IsDefault    bool      `gorm:"not null;default:false" json:"is_default"`
}

func (AddressBook) TableName() string { return "address_book" }

// FullAddress 按 省→市→区→详细地址 顺序拼接，缺失部分替换为空串。
func (a AddressBook) FullAddress() string {
	return deref(a.ProvinceName) + deref(a.CityName) + deref(a.DistrictName) + deref(a.Detail)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
