// Package storetest 为测试提供内存 sqlite 数据库与造数辅助函数。
package storetest

import (
	"fmt"
	"testing"

	"takeaway/internal/model"
	"takeaway/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open 返回已建表、彼此隔离的内存数据库，测试结束时自动关闭。
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := store.Open(store.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func StrPtr(v string) *string { return &v }

func Int64Ptr(v int64) *int64 { return &v }

func SeedUser(t *testing.T, db *gorm.DB, id int64, name string) model.User {
	t.Helper()
	u := model.User{ID: id, Name: name, Phone: "13800000000", Status: 1}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func SeedAddress(t *testing.T, db *gorm.DB, a model.AddressBook) model.AddressBook {
	t.Helper()
	require.NoError(t, db.Create(&a).Error)
	return a
}

// SeedCartLine 向用户购物车加入一行菜品。
func SeedCartLine(t *testing.T, db *gorm.DB, userID, dishID int64, qty int, price string) model.ShoppingCart {
	t.Helper()
	line := model.ShoppingCart{
		UserID: userID,
		DishID: Int64Ptr(dishID),
		Number: qty,
		Amount: decimal.RequireFromString(price),
		Name:   fmt.Sprintf("dish-%d", dishID),
		Image:  fmt.Sprintf("dish-%d.png", dishID),
	}
	require.NoError(t, db.Create(&line).Error)
	return line
}

func Count(t *testing.T, db *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}
