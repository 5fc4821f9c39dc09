package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/models"
	"github.com/wfunc/loracam/internal/service"
)

// EventAPI 链路事件日志API
type EventAPI struct {
	service *service.LinkEventService
}

// NewEventAPI 创建链路事件日志API
func NewEventAPI(service *service.LinkEventService) *EventAPI {
	return &EventAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由
func (api *EventAPI) RegisterRoutes(read, write *gin.RouterGroup) {
	events := read.Group("/events")
	{
		events.GET("", api.QueryEvents)         // 查询事件列表
		events.GET("/latest", api.GetLatest)    // 获取最新事件
		events.GET("/stats", api.GetStats)      // 获取统计信息
		events.GET("/export", api.ExportEvents) // 导出事件
	}
	write.POST("/events/cleanup", api.CleanupEvents) // 清理旧事件
}

// parseQuery 解析查询参数
func parseQuery(c *gin.Context) (*models.LinkEventQuery, error) {
	query := &models.LinkEventQuery{}
	if err := c.ShouldBindQuery(query); err != nil {
		return nil, err
	}
	if query.Direction != "" && !models.ValidDirection(query.Direction) {
		return nil, fmt.Errorf("未知的方向 %q", query.Direction)
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}
	query.OrderBy = c.DefaultQuery("order_by", "created_at DESC")
	return query, nil
}

// parseTimeRange 解析 RFC3339 时间范围，格式错误的参数忽略
func parseTimeRange(c *gin.Context) (startTime, endTime *time.Time) {
	if start := c.Query("start_time"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = &t
		}
	}
	if end := c.Query("end_time"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}
	return startTime, endTime
}

// QueryEvents 查询事件列表
func (api *EventAPI) QueryEvents(c *gin.Context) {
	query, err := parseQuery(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	events, total, err := api.service.Query(query)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   events,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatest 获取最新事件
func (api *EventAPI) GetLatest(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	direction := models.LinkDirection(c.Query("direction"))
	if direction != "" && !models.ValidDirection(direction) {
		respondBadRequest(c, fmt.Sprintf("未知的方向 %q", direction))
		return
	}

	events, err := api.service.GetLatest(limit, direction)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  events,
		"count": len(events),
	})
}

// GetStats 获取统计信息
func (api *EventAPI) GetStats(c *gin.Context) {
	startTime, endTime := parseTimeRange(c)

	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CleanupEvents 清理旧事件
func (api *EventAPI) CleanupEvents(c *gin.Context) {
	retentionDays, err := strconv.Atoi(c.DefaultQuery("retention_days", "30"))
	if err != nil || retentionDays < 1 {
		respondBadRequest(c, "保留天数必须大于0")
		return
	}

	count, err := api.service.Cleanup(retentionDays)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseDelete))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "清理成功",
		"deleted":        count,
		"retention_days": retentionDays,
	})
}

// ExportEvents 导出事件为JSON文件
func (api *EventAPI) ExportEvents(c *gin.Context) {
	query, err := parseQuery(c)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if c.Query("limit") == "" {
		query.Limit = 10000
	}

	data, err := api.service.Export(query)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrDatabaseQuery))
		return
	}

	filename := fmt.Sprintf("link_events_%s.json", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/json", data)
}
