package repository

import (
	"fmt"
	"time"

	"github.com/wfunc/loracam/internal/models"
	"gorm.io/gorm"
)

// 允许的排序方式
var linkEventOrders = map[string]bool{
	"created_at DESC": true,
	"created_at ASC":  true,
	"duration DESC":   true,
	"bytes DESC":      true,
}

// LinkEventRepository 链路事件仓库
type LinkEventRepository struct {
	db *gorm.DB
}

// NewLinkEventRepository 创建链路事件仓库
func NewLinkEventRepository(db *gorm.DB) *LinkEventRepository {
	return &LinkEventRepository{
		db: db,
	}
}

// Create 创建事件记录
func (r *LinkEventRepository) Create(event *models.LinkEvent) error {
	return r.db.Create(event).Error
}

// CreateBatch 批量创建事件记录
func (r *LinkEventRepository) CreateBatch(events []*models.LinkEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.CreateInBatches(events, 100).Error
}

// Query 查询事件
func (r *LinkEventRepository) Query(query *models.LinkEventQuery) ([]*models.LinkEvent, int64, error) {
	db := r.db.Model(&models.LinkEvent{})

	// 构建查询条件
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	db = db.Scopes(timeRange(query.StartTime, query.EndTime))
	if query.HasError != nil && *query.HasError {
		db = db.Where("error_code > 0")
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 排序
	orderBy := query.OrderBy
	if !linkEventOrders[orderBy] {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy).Order("id DESC")

	// 分页
	db = db.Scopes(Paginate(NewPagination(query.Limit, query.Offset, maxExportSize)))

	var events []*models.LinkEvent
	if err := db.Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// GetLatest 获取最新的事件，direction 为空时不过滤
func (r *LinkEventRepository) GetLatest(limit int, direction models.LinkDirection) ([]*models.LinkEvent, error) {
	var events []*models.LinkEvent
	p := NewPagination(limit, 0, maxLatestSize)
	db := r.db.Order("created_at DESC").Order("id DESC").Scopes(Paginate(p))
	if direction != "" {
		db = db.Where("direction = ?", direction)
	}
	err := db.Find(&events).Error
	return events, err
}

// GetStats 获取统计信息
func (r *LinkEventRepository) GetStats(startTime, endTime *time.Time) (*models.LinkEventStats, error) {
	stats := &models.LinkEventStats{ByStatus: make(map[string]int64)}
	base := func() *gorm.DB {
		return r.db.Model(&models.LinkEvent{}).Scopes(timeRange(startTime, endTime))
	}

	// 按方向统计
	type directionRow struct {
		Direction string
		Count     int64
		Bytes     int64
	}
	var rows []directionRow
	if err := base().
		Select("direction, COUNT(*) as count, COALESCE(SUM(bytes), 0) as bytes").
		Group("direction").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.TotalCount += row.Count
		switch models.LinkDirection(row.Direction) {
		case models.LinkDirectionJoin:
			stats.TotalJoin = row.Count
		case models.LinkDirectionUplink:
			stats.TotalUplink = row.Count
			stats.UplinkBytes = row.Bytes
		case models.LinkDirectionDownlink:
			stats.TotalDownlink = row.Count
			stats.DownlinkBytes = row.Bytes
		}
	}

	// 按状态统计
	type statusRow struct {
		Status string
		Count  int64
	}
	var statusRows []statusRow
	if err := base().
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&statusRows).Error; err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		stats.ByStatus[row.Status] = row.Count
	}

	// 错误统计
	if err := base().Where("error_code > 0").Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	// 性能统计
	type durationStats struct {
		AvgDuration float64
		MaxDuration int64
	}
	var ds durationStats
	if err := base().
		Select("COALESCE(AVG(duration), 0) as avg_duration, COALESCE(MAX(duration), 0) as max_duration").
		Where("duration > 0").
		Scan(&ds).Error; err != nil {
		return nil, err
	}
	stats.AvgDuration = ds.AvgDuration
	stats.MaxDuration = ds.MaxDuration

	return stats, nil
}

// DeleteBefore 删除指定时间之前的事件
func (r *LinkEventRepository) DeleteBefore(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.LinkEvent{})
	return result.RowsAffected, result.Error
}

// Cleanup 保留最近N天的事件
func (r *LinkEventRepository) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	return r.DeleteBefore(time.Now().AddDate(0, 0, -retentionDays))
}
