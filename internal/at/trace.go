package at

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// 跟踪方向
const (
	DirectionTX = "TX"
	DirectionRX = "RX"
)

// TraceSink 原始命令/响应行的跟踪输出
type TraceSink interface {
	RecordLine(direction, line string)
}

// NopTrace 关闭跟踪
type NopTrace struct{}

// RecordLine 忽略
func (NopTrace) RecordLine(string, string) {}

// WriterTrace 输出到终端等 io.Writer
type WriterTrace struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTrace 创建写入 w 的跟踪输出
func NewWriterTrace(w io.Writer) *WriterTrace {
	return &WriterTrace{w: w}
}

// RecordLine 写入一行，发送方向带 >> 前缀
func (t *WriterTrace) RecordLine(direction, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if direction == DirectionTX {
		fmt.Fprintf(t.w, ">> %s\n", line)
		return
	}
	fmt.Fprintf(t.w, "%s\n", line)
}

// LoggerTrace 输出到 zap
type LoggerTrace struct {
	logger *zap.Logger
}

// NewLoggerTrace 创建日志跟踪输出
func NewLoggerTrace(l *zap.Logger) *LoggerTrace {
	return &LoggerTrace{logger: l}
}

// RecordLine 以 debug 级别记录
func (t *LoggerTrace) RecordLine(direction, line string) {
	t.logger.Debug("at_trace",
		zap.String("direction", direction),
		zap.String("line", line))
}

// MultiTrace 同时输出到多个跟踪
type MultiTrace []TraceSink

// RecordLine 依次转发
func (m MultiTrace) RecordLine(direction, line string) {
	for _, sink := range m {
		if sink != nil {
			sink.RecordLine(direction, line)
		}
	}
}

// SwitchTrace 可在运行时开关的跟踪输出
type SwitchTrace struct {
	mu      sync.RWMutex
	enabled bool
	sink    TraceSink
}

// NewSwitchTrace 创建可开关的跟踪输出
func NewSwitchTrace(sink TraceSink, enabled bool) *SwitchTrace {
	return &SwitchTrace{sink: sink, enabled: enabled}
}

// SetEnabled 开关跟踪
func (s *SwitchTrace) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

// Enabled 当前是否开启
func (s *SwitchTrace) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// RecordLine 开启时转发
func (s *SwitchTrace) RecordLine(direction, line string) {
	s.mu.RLock()
	enabled, sink := s.enabled, s.sink
	s.mu.RUnlock()
	if enabled && sink != nil {
		sink.RecordLine(direction, line)
	}
}
