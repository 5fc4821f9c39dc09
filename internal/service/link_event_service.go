package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/logger"
	"github.com/wfunc/loracam/internal/lorawan"
	"github.com/wfunc/loracam/internal/models"
	"github.com/wfunc/loracam/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	flushInterval  = 5 * time.Second // 定时批量写入间隔
	flushThreshold = 100             // 缓冲达到该数量立即写入
)

// LinkEventService 链路事件日志服务
type LinkEventService struct {
	repo      *repository.LinkEventRepository
	logger    *zap.Logger
	buffer    []*models.LinkEvent
	bufferCh  chan *models.LinkEvent
	flushCh   chan chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	sessionID string
}

// NewLinkEventService 创建链路事件日志服务
func NewLinkEventService(db *gorm.DB) *LinkEventService {
	service := &LinkEventService{
		repo:      repository.NewLinkEventRepository(db),
		logger:    logger.WithModule("database"),
		buffer:    make([]*models.LinkEvent, 0, flushThreshold),
		bufferCh:  make(chan *models.LinkEvent, 1000),
		flushCh:   make(chan chan struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sessionID: uuid.New().String(),
	}

	// 启动后台写入协程
	go service.backgroundWriter()

	return service
}

// SessionID 本次运行的会话ID
func (s *LinkEventService) SessionID() string {
	return s.sessionID
}

// backgroundWriter 后台写入协程
func (s *LinkEventService) backgroundWriter() {
	defer close(s.doneCh)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.bufferCh:
			s.buffer = append(s.buffer, event)
			if len(s.buffer) >= flushThreshold {
				s.flushBuffer()
			}

		case <-ticker.C:
			s.flushBuffer()

		case done := <-s.flushCh:
			s.drainChannel()
			s.flushBuffer()
			close(done)

		case <-s.stopCh:
			// 退出前写入剩余的事件
			s.drainChannel()
			s.flushBuffer()
			return
		}
	}
}

func (s *LinkEventService) drainChannel() {
	for {
		select {
		case event := <-s.bufferCh:
			s.buffer = append(s.buffer, event)
		default:
			return
		}
	}
}

// flushBuffer 写入缓冲区的事件到数据库
func (s *LinkEventService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	start := time.Now()
	err := s.repo.CreateBatch(s.buffer)
	logger.LogDatabaseOperation("create_batch", models.LinkEvent{}.TableName(), time.Since(start), err)
	if err != nil {
		s.logger.Error("批量写入链路事件失败", zap.Int("count", len(s.buffer)), zap.Error(err))
	}

	s.buffer = s.buffer[:0]
}

// RecordEvent 记录链路事件，异步写入
func (s *LinkEventService) RecordEvent(e lorawan.Event) {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	event := &models.LinkEvent{
		CreatedAt: ts,
		SessionID: s.sessionID,
		Direction: models.LinkDirection(e.Direction),
		Status:    e.Status,
		Payload:   e.Payload,
		HexData:   e.HexData,
		Bytes:     e.Bytes,
		Command:   e.Command,
		Duration:  e.Duration.Milliseconds(),
		Timestamp: ts.UnixMilli(),
	}
	if e.Err != nil {
		event.ErrorCode = int(apperrors.GetCode(e.Err))
		event.ErrorMsg = e.Err.Error()
	}

	select {
	case s.bufferCh <- event:
	default:
		s.logger.Warn("链路事件缓冲区满，丢弃事件", zap.String("direction", e.Direction))
	}
}

// Flush 立即写入缓冲中的事件
func (s *LinkEventService) Flush() {
	done := make(chan struct{})
	select {
	case s.flushCh <- done:
		<-done
	case <-s.doneCh:
	}
}

// Query 查询事件
func (s *LinkEventService) Query(query *models.LinkEventQuery) ([]*models.LinkEvent, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *LinkEventService) GetStats(startTime, endTime *time.Time) (*models.LinkEventStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatest 获取最新事件
func (s *LinkEventService) GetLatest(limit int, direction models.LinkDirection) ([]*models.LinkEvent, error) {
	return s.repo.GetLatest(limit, direction)
}

// Cleanup 清理旧事件（保留最近N天）
func (s *LinkEventService) Cleanup(retentionDays int) (int64, error) {
	return s.repo.Cleanup(retentionDays)
}

// Export 导出事件为JSON
func (s *LinkEventService) Export(query *models.LinkEventQuery) ([]byte, error) {
	events, _, err := s.repo.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(events, "", "  ")
}

// Stop 停止后台写入并写入剩余事件，可重复调用
func (s *LinkEventService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.logger.Info("链路事件服务已停止")
	})
}
