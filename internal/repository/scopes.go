package repository

import (
	"time"

	"gorm.io/gorm"
)

// 单次查询的行数上限
const (
	defaultPageSize = 20
	maxLatestSize   = 1000
	maxExportSize   = 10000
)

// Pagination 分页参数
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPagination 创建分页参数，limit 非正数时取默认值，超过 max 时截断
func NewPagination(limit, offset, max int) *Pagination {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return &Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// Paginate 分页查询
func Paginate(p *Pagination) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset).Limit(p.Limit)
	}
}

// timeRange 按创建时间过滤，边界为空时不限制
func timeRange(startTime, endTime *time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}
}
