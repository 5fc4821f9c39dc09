// Package attest 提供脚本化的假传输层与假时钟，供AT相关测试使用
package attest

import (
	"strings"
	"sync"
	"time"

	apperrors "github.com/wfunc/loracam/internal/errors"
)

// chunkSize 每次 DrainAvailable 返回的最大字节数，模拟数据分批到达
const chunkSize = 7

// Responder 根据命令返回模组输出的行
type Responder func(cmd string) []string

// ScriptedTransport 按脚本应答的传输层
type ScriptedTransport struct {
	mu        sync.Mutex
	responder Responder
	writes    []string
	pending   []byte
	closes    int
	closed    bool

	// WriteErr 非空时 Write 返回该错误
	WriteErr error
}

// NewScriptedTransport 创建脚本传输层
func NewScriptedTransport(r Responder) *ScriptedTransport {
	return &ScriptedTransport{responder: r}
}

// Write 记录命令并生成响应
func (t *ScriptedTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return apperrors.New(apperrors.ErrSerialPortClosed)
	}
	if t.WriteErr != nil {
		return t.WriteErr
	}

	cmd := strings.TrimSuffix(string(p), "\r")
	t.writes = append(t.writes, cmd)
	if t.responder == nil {
		return nil
	}
	for _, line := range t.responder(cmd) {
		t.pending = append(t.pending, line...)
		t.pending = append(t.pending, '\r', '\n')
	}
	return nil
}

// DrainAvailable 分批返回已缓冲数据
func (t *ScriptedTransport) DrainAvailable() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, apperrors.New(apperrors.ErrSerialPortClosed)
	}
	n := len(t.pending)
	if n > chunkSize {
		n = chunkSize
	}
	out := append([]byte(nil), t.pending[:n]...)
	t.pending = t.pending[n:]
	return out, nil
}

// Close 记录关闭次数
func (t *ScriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	t.closed = true
	return nil
}

// Writes 返回写入过的命令（不含结束符）
func (t *ScriptedTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Count 返回某条命令被发送的次数
func (t *ScriptedTransport) Count(cmd string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, w := range t.writes {
		if w == cmd {
			n++
		}
	}
	return n
}

// Closes 返回 Close 被调用的次数
func (t *ScriptedTransport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// FakeClock 只记录不等待的时钟
type FakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// Sleep 记录等待时间
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
}

// Sleeps 返回全部等待记录
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Count 返回等于 d 的等待次数
func (c *FakeClock) Count(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

// Total 返回累计等待时间
func (c *FakeClock) Total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, s := range c.sleeps {
		total += s
	}
	return total
}

// Lines 生成固定应答
func Lines(lines ...string) Responder {
	return func(string) []string { return lines }
}
