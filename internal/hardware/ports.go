package hardware

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/wfunc/loracam/internal/logger"
	bugst "go.bug.st/serial"
	"go.uber.org/zap"
)

// 自动检测时按顺序尝试的设备名模式
var detectPatterns = []string{
	"ttyUSB",
	"ttyACM",
	"serial",
	"ttyAMA",
	"ttyS",
}

// SerialPortExists 检查串口设备是否存在
func SerialPortExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListPorts 列出系统中可用的串口
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("枚举串口失败: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// DetectPort 自动选择一个串口，USB转串口优先
func DetectPort() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}

	for _, pattern := range detectPatterns {
		for _, p := range ports {
			if strings.Contains(p, pattern) {
				logger.GetLogger().Info("找到设备", zap.String("device", p))
				return p, nil
			}
		}
	}

	// 枚举为空时按设备节点探测
	for _, pattern := range detectPatterns {
		for i := 0; i < 10; i++ {
			device := fmt.Sprintf("/dev/%s%d", pattern, i)
			if SerialPortExists(device) {
				logger.GetLogger().Info("找到设备", zap.String("device", device))
				return device, nil
			}
		}
	}

	return "", fmt.Errorf("未找到可用串口")
}
