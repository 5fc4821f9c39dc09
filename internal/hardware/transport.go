package hardware

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/wfunc/loracam/internal/config"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/logger"
	"go.uber.org/zap"
)

// SerialTransport 串口字节传输层
//
// 后台读取循环把串口数据搬进内存缓冲区，DrainAvailable 只取走已到达的字节，
// 不会为了等待更多数据而阻塞。
type SerialTransport struct {
	port   SerialPort
	logger *zap.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	readErr error
	closed  bool

	closeOnce sync.Once
	closeErr  error
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// OpenTransport 打开串口并启动读取循环，失败直接返回给调用方
func OpenTransport(cfg *config.SerialConfig) (*SerialTransport, error) {
	port, err := OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return NewSerialTransport(port), nil
}

// NewSerialTransport 基于已打开的端口创建传输层
func NewSerialTransport(port SerialPort) *SerialTransport {
	t := &SerialTransport{
		port:   port,
		logger: logger.GetLogger(),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	// 丢弃上电残留数据
	if err := port.Flush(); err != nil {
		t.logger.Debug("清空串口缓冲区失败", zap.Error(err))
	}

	go t.readLoop()
	return t
}

// readLoop 读取循环
func (t *SerialTransport) readLoop() {
	defer close(t.doneCh)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.mu.Lock()
			t.buf.Write(buffer[:n])
			t.mu.Unlock()
		}
		if err == nil {
			continue
		}

		// tarm 在读超时时返回 EOF，视为暂无数据
		if errors.Is(err, io.EOF) {
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
			continue
		}

		t.mu.Lock()
		closing := t.closed
		if !closing {
			t.readErr = err
		}
		t.mu.Unlock()

		if !closing {
			t.logger.Error("串口读取失败，读取循环退出", zap.Error(err))
		}
		return
	}
}

// Write 写入原始字节
func (t *SerialTransport) Write(p []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return apperrors.New(apperrors.ErrSerialPortClosed)
	}

	if _, err := t.port.Write(p); err != nil {
		return apperrors.Wrap(err, apperrors.ErrSerialPortWrite)
	}
	return nil
}

// DrainAvailable 取走当前已缓冲的全部字节
func (t *SerialTransport) DrainAvailable() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, apperrors.New(apperrors.ErrSerialPortClosed)
	}

	if t.buf.Len() > 0 {
		data := make([]byte, t.buf.Len())
		copy(data, t.buf.Bytes())
		t.buf.Reset()
		return data, nil
	}

	if t.readErr != nil {
		return nil, apperrors.Wrap(t.readErr, apperrors.ErrSerialPortRead)
	}
	return nil, nil
}

// Close 关闭串口，可重复调用
func (t *SerialTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		close(t.stopCh)
		t.closeErr = t.port.Close()

		// 等待读取循环退出，最长一个读超时周期
		select {
		case <-t.doneCh:
		case <-time.After(2 * time.Second):
			t.logger.Warn("等待串口读取循环退出超时")
		}

		t.logger.Info("串口已断开")
	})
	return t.closeErr
}
