package hardware

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/loracam/internal/logger"
	"go.uber.org/zap"
)

// SimulatedModemConfig 模拟模组行为配置
type SimulatedModemConfig struct {
	JoinAfterPolls int           // 第几次状态查询返回入网结果
	JoinStatus     string        // 入网结果状态码，默认 "04"
	Downlink       string        // 每次上行后排队的下行文本
	ReadTimeout    time.Duration // Read 无数据时的等待时间
}

// SimulatedModem 模拟LoRa模组（用于无硬件调试与测试）
type SimulatedModem struct {
	mu     sync.Mutex
	logger *zap.Logger
	config SimulatedModemConfig

	pending  bytes.Buffer // 待模组输出的字节
	partial  bytes.Buffer // 尚未收到 \r 的命令
	notify   chan struct{}
	closed   bool
	polls    int
	joined   bool
	downlink []string
	commands []string
}

// NewSimulatedModem 创建模拟模组
func NewSimulatedModem(cfg SimulatedModemConfig) *SimulatedModem {
	if cfg.JoinStatus == "" {
		cfg.JoinStatus = "04"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	return &SimulatedModem{
		logger: logger.GetLogger(),
		config: cfg,
		notify: make(chan struct{}, 1),
	}
}

// QueueDownlink 排队一条下行文本，下次 AT+DRX? 时返回
func (m *SimulatedModem) QueueDownlink(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downlink = append(m.downlink, text)
}

// Commands 返回已收到的命令
func (m *SimulatedModem) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.commands))
	copy(out, m.commands)
	return out
}

// Write 接收主机命令，按 \r 分帧后生成响应
func (m *SimulatedModem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}

	m.partial.Write(p)
	for {
		data := m.partial.Bytes()
		idx := bytes.IndexByte(data, '\r')
		if idx < 0 {
			break
		}
		cmd := strings.TrimSpace(string(data[:idx]))
		m.partial.Next(idx + 1)
		if cmd == "" {
			continue
		}
		m.commands = append(m.commands, cmd)
		for _, line := range m.respond(cmd) {
			m.pending.WriteString(line)
			m.pending.WriteString("\r\n")
		}
	}

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return len(p), nil
}

// respond 生成单条命令的响应行，调用方持有锁
func (m *SimulatedModem) respond(cmd string) []string {
	switch {
	case cmd == "AT+IREBOOT=0":
		m.polls = 0
		m.joined = false
		return []string{"OK", "ASR6601:~#"}
	case strings.HasPrefix(cmd, "AT+RREGION="),
		strings.HasPrefix(cmd, "AT+CCLASS="),
		strings.HasPrefix(cmd, "AT+CJOINMODE="),
		strings.HasPrefix(cmd, "AT+CDEVEUI="),
		strings.HasPrefix(cmd, "AT+CAPPEUI="),
		strings.HasPrefix(cmd, "AT+CAPPKEY="),
		cmd == "AT+CSAVE":
		return []string{"OK"}
	case strings.HasPrefix(cmd, "AT+DJOIN="):
		m.polls = 0
		return []string{"OK"}
	case cmd == "AT+DULSTAT?":
		m.polls++
		if m.joined || m.polls >= m.config.JoinAfterPolls {
			if m.config.JoinStatus != "05" {
				m.joined = true
			}
			return []string{"+DULSTAT:" + m.config.JoinStatus, "OK"}
		}
		return []string{"+DULSTAT:02", "OK"}
	case strings.HasPrefix(cmd, "AT+DTRX="):
		if !m.joined {
			return []string{"ERROR"}
		}
		if m.config.Downlink != "" {
			m.downlink = append(m.downlink, m.config.Downlink)
		}
		return []string{"OK", "OK+SENT"}
	case cmd == "AT+DRX?":
		if len(m.downlink) == 0 {
			return []string{"+DRX=0,", "OK"}
		}
		text := m.downlink[0]
		m.downlink = m.downlink[1:]
		return []string{
			fmt.Sprintf("+DRX=%d,%s", len(text), strings.ToUpper(hex.EncodeToString([]byte(text)))),
			"OK",
		}
	case cmd == "AT":
		return []string{"OK"}
	default:
		m.logger.Debug("模拟模组收到未知命令", zap.String("command", cmd))
		return []string{"ERROR"}
	}
}

// Read 读取模组输出，无数据时等待一个读超时周期后返回 EOF
func (m *SimulatedModem) Read(p []byte) (int, error) {
	deadline := time.NewTimer(m.config.ReadTimeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, io.ErrClosedPipe
		}
		if m.pending.Len() > 0 {
			n, _ := m.pending.Read(p)
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		select {
		case <-m.notify:
		case <-deadline.C:
			return 0, io.EOF
		}
	}
}

// Flush 清空待输出数据
func (m *SimulatedModem) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Reset()
	m.partial.Reset()
	return nil
}

// Close 关闭模拟模组
func (m *SimulatedModem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	select {
	case m.notify <- struct{}{}:
	default:
	}
	m.logger.Info("模拟模组已关闭")
	return nil
}
