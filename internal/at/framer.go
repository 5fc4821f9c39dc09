package at

import (
	"strings"
	"time"

	"github.com/wfunc/loracam/internal/logger"
)

// DefaultWait 默认命令等待时间
const DefaultWait = 100 * time.Millisecond

// Transport 字节传输层
type Transport interface {
	Write(p []byte) error
	DrainAvailable() ([]byte, error)
	Close() error
}

// Response 一次命令收到的非空响应行，按到达顺序排列
type Response []string

// Empty 是否没有任何响应行
func (r Response) Empty() bool {
	return len(r) == 0
}

// Contains 是否有任意一行包含 marker
func (r Response) Contains(marker string) bool {
	for _, line := range r {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// Framer 命令/响应分帧器
type Framer struct {
	transport Transport
	clock     Clock
	trace     TraceSink
}

// NewFramer 创建分帧器，clock 与 trace 可为 nil
func NewFramer(t Transport, clock Clock, trace TraceSink) *Framer {
	if clock == nil {
		clock = SystemClock{}
	}
	if trace == nil {
		trace = NopTrace{}
	}
	return &Framer{transport: t, clock: clock, trace: trace}
}

// SetTrace 替换跟踪输出
func (f *Framer) SetTrace(trace TraceSink) {
	if trace == nil {
		trace = NopTrace{}
	}
	f.trace = trace
}

// Send 发送一条命令，等待 wait 后反复读取直到缓冲区为空，再拆分成行
func (f *Framer) Send(cmd string, wait time.Duration) (Response, error) {
	if err := f.transport.Write([]byte(cmd + "\r")); err != nil {
		logger.LogATExchange(cmd, nil, err)
		return nil, err
	}
	f.trace.RecordLine(DirectionTX, cmd)

	f.clock.Sleep(wait)

	var raw strings.Builder
	for {
		data, err := f.transport.DrainAvailable()
		if err != nil {
			logger.LogATExchange(cmd, nil, err)
			return nil, err
		}
		if len(data) == 0 {
			break
		}
		raw.Write(data)
	}

	lines := SplitLines(raw.String())
	for _, line := range lines {
		f.trace.RecordLine(DirectionRX, line)
	}
	logger.LogATExchange(cmd, lines, nil)

	return lines, nil
}

// SplitLines 按行拆分，丢弃非法字节、首尾空白和空行
func SplitLines(s string) Response {
	s = strings.ToValidUTF8(s, "")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r'
	})

	lines := make(Response, 0, len(fields))
	for _, field := range fields {
		if line := strings.TrimSpace(field); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
