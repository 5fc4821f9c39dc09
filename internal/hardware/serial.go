package hardware

import (
	"fmt"
	"time"

	tarm "github.com/tarm/serial"
	"github.com/wfunc/loracam/internal/config"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/logger"
	bugst "go.bug.st/serial"
	"go.uber.org/zap"
)

// OpenPort 按配置打开串口，返回统一的 SerialPort
func OpenPort(cfg *config.SerialConfig) (SerialPort, error) {
	if cfg.MockMode || cfg.Backend == BackendMock {
		logger.GetLogger().Info("使用模拟LoRa模组", zap.String("port", cfg.Port))
		return NewSimulatedModem(SimulatedModemConfig{
			JoinAfterPolls: cfg.Mock.JoinAfterPolls,
			JoinStatus:     cfg.Mock.JoinStatus,
			Downlink:       cfg.Mock.Downlink,
			ReadTimeout:    cfg.ReadTimeout,
		}), nil
	}

	name := cfg.Port
	if name == "" || name == "auto" {
		detected, err := DetectPort()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrSerialPortOpen, "自动检测串口")
		}
		name = detected
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = time.Second
	}

	var (
		port SerialPort
		err  error
	)
	switch cfg.Backend {
	case "", BackendTarm:
		port, err = openTarm(name, cfg.BaudRate, timeout)
	case BackendBugst:
		port, err = openBugst(name, cfg.BaudRate, timeout)
	default:
		return nil, apperrors.Newf(apperrors.ErrConfigValidate, "未知的串口后端 %q", cfg.Backend)
	}
	if err != nil {
		logger.GetLogger().Error("打开串口失败",
			zap.String("port", name),
			zap.String("backend", cfg.Backend),
			zap.Error(err))
		return nil, apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "串口 %s", name)
	}

	logger.GetLogger().Info("串口连接成功",
		zap.String("port", name),
		zap.String("backend", cfg.Backend),
		zap.Int("baud_rate", cfg.BaudRate),
		zap.Duration("read_timeout", timeout))

	return port, nil
}

func openTarm(name string, baud int, timeout time.Duration) (SerialPort, error) {
	// 8N1
	port, err := tarm.OpenPort(&tarm.Config{
		Name:        name,
		Baud:        baud,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

// bugstPort 适配 go.bug.st/serial 的端口
type bugstPort struct {
	bugst.Port
}

// Flush 丢弃输入输出缓冲区
func (p *bugstPort) Flush() error {
	if err := p.ResetInputBuffer(); err != nil {
		return err
	}
	return p.ResetOutputBuffer()
}

func openBugst(name string, baud int, timeout time.Duration) (SerialPort, error) {
	port, err := bugst.Open(name, &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("设置读超时失败: %w", err)
	}
	return &bugstPort{Port: port}, nil
}
