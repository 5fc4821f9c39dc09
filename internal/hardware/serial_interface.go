package hardware

import "io"

// SerialPort 串口接口（真实串口与模拟模组共用）
type SerialPort interface {
	io.ReadWriteCloser
	Flush() error
}

// 串口后端
const (
	BackendTarm  = "tarm"
	BackendBugst = "bugst"
	BackendMock  = "mock"
)
