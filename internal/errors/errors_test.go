package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

// 测试创建新错误
func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidParam)
	suite.NotNil(err)
	suite.Equal(ErrInvalidParam, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrSerialPortOpen, "/dev/ttyS0")
	suite.Equal("串口打开失败", err.Message)
	suite.Equal("/dev/ttyS0", err.Details)

	err = New(ErrJoinConfig, "AT+CDEVEUI", "空响应")
	suite.Equal("AT+CDEVEUI; 空响应", err.Details)
}

// 测试格式化错误创建
func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrMalformedResponse, "无法解析长度字段 %q", "+DRX=x,00")
	suite.Equal(ErrMalformedResponse, err.Code)
	suite.Equal(`无法解析长度字段 "+DRX=x,00"`, err.Details)
}

// 测试错误包装
func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("input/output error")
	wrappedErr := Wrap(originalErr, ErrSerialPortWrite)
	suite.Equal(ErrSerialPortWrite, wrappedErr.Code)
	suite.Equal("input/output error", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 包装已有的AppError，保留原始错误码
	appErr := New(ErrSerialPortClosed, "已关闭")
	wrappedAppErr := Wrap(appErr, ErrSerialPortWrite, "AT+CSAVE")
	suite.Equal(ErrSerialPortClosed, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "AT+CSAVE")
}

// 测试格式化错误包装
func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("no such file or directory")
	wrappedErr := Wrapf(originalErr, ErrSerialPortOpen, "串口 %s", "/dev/ttyS0")
	suite.Equal(ErrSerialPortOpen, wrappedErr.Code)
	suite.Equal("串口 /dev/ttyS0", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

// 测试错误码判断（支持 fmt.Errorf 包装链）
func (suite *ErrorsTestSuite) TestIs() {
	err := New(ErrProtocolTimeout)
	suite.True(Is(err, ErrProtocolTimeout))
	suite.False(Is(err, ErrJoinRejected))
	suite.False(Is(nil, ErrProtocolTimeout))
	suite.False(Is(errors.New("标准错误"), ErrUnknown))

	chained := fmt.Errorf("join: %w", New(ErrJoinRejected))
	suite.True(Is(chained, ErrJoinRejected))
	suite.Equal(ErrJoinRejected, GetCode(chained))
}

// 测试获取错误码
func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrEncoding, GetCode(New(ErrEncoding)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

// 测试错误消息
func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{
		Code:    ErrEncoding,
		Message: "载荷解码失败",
	}
	suite.Equal("[3102] 载荷解码失败", err.Error())

	err.Details = "odd length hex string"
	suite.Equal("[3102] 载荷解码失败: odd length hex string", err.Error())
}

// 测试Unwrap
func (suite *ErrorsTestSuite) TestUnwrap() {
	originalErr := errors.New("原始错误")
	wrappedErr := Wrap(originalErr, ErrUnknown)
	suite.Equal(originalErr, wrappedErr.Unwrap())
	suite.True(errors.Is(wrappedErr, originalErr))

	suite.Nil(New(ErrUnknown).Unwrap())
}

// 测试WithCause
func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("bad port")
	err := New(ErrSerialPortOpen).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal("bad port", err.Details)

	err2 := New(ErrSerialPortOpen, "/dev/ttyS0").WithCause(cause)
	suite.Equal("/dev/ttyS0", err2.Details) // 保留原有Details
}

// 测试HTTP状态码映射
func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidParam, 400},
		{ErrNotFound, 404},
		{ErrAlreadyExists, 400},
		{ErrPermissionDenied, 403},
		{ErrProtocolTimeout, 504},
		{ErrSerialPortOpen, 502},
		{ErrUplinkRejected, 502},
		{ErrAuthentication, 401},
		{ErrDatabaseConnect, 503},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		err := New(tc.code)
		suite.Equal(tc.expected, err.HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 测试可重试判断
func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrSerialTimeout, ErrProtocolTimeout, ErrDeviceBusy} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrSerialPortOpen, ErrJoinRejected, ErrMalformedResponse} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

// 测试严重错误判断
func (suite *ErrorsTestSuite) TestIsCritical() {
	for _, code := range []ErrorCode{ErrSerialPortOpen, ErrSerialPortWrite, ErrSerialPortClosed, ErrConfigLoad} {
		suite.True(IsCritical(New(code)), "错误码 %d 应该是严重错误", code)
	}
	for _, code := range []ErrorCode{ErrProtocolTimeout, ErrEncoding, ErrMalformedResponse} {
		suite.False(IsCritical(New(code)), "错误码 %d 不应该是严重错误", code)
	}
	suite.False(IsCritical(nil))
}

// 测试调用栈捕获
func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.Greater(len(err.Stack), 0)
	suite.NotEmpty(err.GetStack())
}

// 测试错误响应
func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrUplinkRejected, "ERROR")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

// 测试未知错误码
func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

// 测试协议相关错误
func (suite *ErrorsTestSuite) TestProtocolErrors() {
	protocolErrors := map[ErrorCode]string{
		ErrProtocolTimeout:   "入网状态轮询超时",
		ErrMalformedResponse: "响应行格式错误",
		ErrEncoding:          "载荷解码失败",
		ErrJoinRejected:      "入网被拒绝",
		ErrJoinConfig:        "入网参数配置失败",
		ErrUplinkRejected:    "上行发送失败",
	}

	for code, expectedMsg := range protocolErrors {
		suite.Equal(expectedMsg, New(code).Message)
	}
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
