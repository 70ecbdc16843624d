package store

import (
	"context"

	"takeaway/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cartRepo struct {
	db *gorm.DB
}

// ListByUser 在事务内对购物车行加 FOR UPDATE（sqlite 方言会忽略该子句）。
func (r *cartRepo) ListByUser(ctx context.Context, userID int64) ([]model.ShoppingCart, error) {
	var lines []model.ShoppingCart
	err := lockedCartQuery(r.db.WithContext(ctx), userID).Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func lockedCartQuery(db *gorm.DB, userID int64) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("id ASC")
}

func (r *cartRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.ShoppingCart{})
	return res.RowsAffected, res.Error
}
