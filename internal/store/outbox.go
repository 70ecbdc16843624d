package store

import (
	"context"
	"time"
	"unicode/utf8"

	"takeaway/internal/model"

	"gorm.io/gorm"
)

type outboxRepo struct {
	db *gorm.DB
}

func (r *outboxRepo) Insert(ctx context.Context, ev *model.OrderEvent) error {
	if ev.NextRetryAt.IsZero() {
		ev.NextRetryAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(ev).Error
}

// Due 取出已到重试时间且未超过最大尝试次数的事件。
func (r *outboxRepo) Due(ctx context.Context, now time.Time, maxAttempts, limit int) ([]model.OrderEvent, error) {
	var events []model.OrderEvent
	err := r.db.WithContext(ctx).
		Where("next_retry_at <= ? AND retry_count < ?", now.UTC(), maxAttempts).
		Order("next_retry_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&model.OrderEvent{}, id).Error
}

func (r *outboxRepo) Reschedule(ctx context.Context, id uint, retryCount int, lastError string, nextRetryAt time.Time) error {
	lastError = truncateUTF8(lastError, lastErrorMaxBytes)
	return r.db.WithContext(ctx).
		Model(&model.OrderEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":   retryCount,
			"last_error":    lastError,
			"next_retry_at": nextRetryAt.UTC(),
		}).Error
}

// last_error 列宽（字节）。
const lastErrorMaxBytes = 255

// truncateUTF8 截断到不超过 n 字节，且不切断多字节字符。
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
