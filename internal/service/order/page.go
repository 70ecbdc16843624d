package order

import (
	"context"

	"takeaway/internal/model"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page 是用户历史订单的一页。
type Page struct {
	Records []model.Orders `json:"records"`
	Total   int64          `json:"total"`
}

// UserPage 按下单时间倒序返回 userID 的历史订单（含明细）。
// page 从 1 开始；非法的 page/pageSize 使用默认值，pageSize 上限 100。
func (s *Service) UserPage(ctx context.Context, userID int64, page, pageSize int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	records, total, err := s.store.Orders().PageByUser(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return Page{}, persistence(err)
	}
	return Page{Records: records, Total: total}, nil
}
