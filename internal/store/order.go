package store

import (
	"context"

	"takeaway/internal/model"

	"gorm.io/gorm"
)

const lineBatchSize = 100

type orderRepo struct {
	db *gorm.DB
}

// InsertHeader 只写订单头，明细由 InsertLines 单独批量写入。
func (r *orderRepo) InsertHeader(ctx context.Context, o *model.Orders) error {
	return r.db.WithContext(ctx).Omit("Details").Create(o).Error
}

func (r *orderRepo) InsertLines(ctx context.Context, lines []model.OrderDetail) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(lines, lineBatchSize).Error
}

// PageByUser 按下单时间倒序分页查询某用户的订单，并带出明细。
func (r *orderRepo) PageByUser(ctx context.Context, userID int64, offset, limit int) ([]model.Orders, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Orders{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Orders{}, 0, nil
	}

	var orders []model.Orders
	err := r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("user_id = ?", userID).
		Order("order_time DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
