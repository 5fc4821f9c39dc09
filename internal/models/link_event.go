package models

import (
	"time"

	"gorm.io/gorm"
)

// LinkDirection 链路事件方向
type LinkDirection string

const (
	LinkDirectionJoin     LinkDirection = "JOIN"     // 入网
	LinkDirectionUplink   LinkDirection = "UPLINK"   // 上行
	LinkDirectionDownlink LinkDirection = "DOWNLINK" // 下行
)

// ValidDirection 是否为已知方向
func ValidDirection(d LinkDirection) bool {
	switch d {
	case LinkDirectionJoin, LinkDirectionUplink, LinkDirectionDownlink:
		return true
	}
	return false
}

// LinkEvent LoRaWAN链路事件日志
type LinkEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	SessionID string        `gorm:"type:varchar(100);index" json:"session_id,omitempty"`   // 服务运行会话ID
	Direction LinkDirection `gorm:"type:varchar(10);index;not null" json:"direction"`       // JOIN/UPLINK/DOWNLINK
	Status    string        `gorm:"type:varchar(20);index;not null" json:"status"`          // joined/sent/received/...

	// 数据内容
	Payload string `gorm:"type:text" json:"payload,omitempty"`  // 明文载荷
	HexData string `gorm:"type:text" json:"hex_data,omitempty"` // 十六进制载荷
	Bytes   int    `gorm:"default:0" json:"bytes"`              // 字节数
	Command string `gorm:"type:varchar(255)" json:"command,omitempty"`

	// 错误
	ErrorCode int    `gorm:"index" json:"error_code,omitempty"`
	ErrorMsg  string `gorm:"type:text" json:"error_msg,omitempty"`

	Duration  int64 `gorm:"default:0" json:"duration"` // 处理时长（毫秒）
	Timestamp int64 `gorm:"index" json:"timestamp"`    // Unix时间戳（毫秒）
}

// TableName 指定表名
func (LinkEvent) TableName() string {
	return "link_events"
}

// BeforeCreate 创建前的钩子
func (e *LinkEvent) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Timestamp == 0 {
		e.Timestamp = e.CreatedAt.UnixMilli()
	}
	return nil
}

// LinkEventQuery 查询参数
type LinkEventQuery struct {
	Direction LinkDirection `form:"direction" json:"direction,omitempty"`
	Status    string        `form:"status" json:"status,omitempty"`
	SessionID string        `form:"session_id" json:"session_id,omitempty"`
	StartTime *time.Time    `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00" json:"start_time,omitempty"`
	EndTime   *time.Time    `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00" json:"end_time,omitempty"`
	HasError  *bool         `form:"has_error" json:"has_error,omitempty"`
	Limit     int           `form:"limit" json:"limit,omitempty"`
	Offset    int           `form:"offset" json:"offset,omitempty"`
	OrderBy   string        `form:"-" json:"order_by,omitempty"`
}

// LinkEventStats 统计信息
type LinkEventStats struct {
	TotalCount    int64            `json:"total_count"`
	TotalJoin     int64            `json:"total_join"`
	TotalUplink   int64            `json:"total_uplink"`
	TotalDownlink int64            `json:"total_downlink"`
	TotalErrors   int64            `json:"total_errors"`
	UplinkBytes   int64            `json:"uplink_bytes"`
	DownlinkBytes int64            `json:"downlink_bytes"`
	ByStatus      map[string]int64 `json:"by_status"`
	AvgDuration   float64          `json:"avg_duration"`
	MaxDuration   int64            `json:"max_duration"`
}
