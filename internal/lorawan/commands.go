package lorawan

import (
	"fmt"
	"time"
)

// AT命令集
const (
	CmdReboot       = "AT+IREBOOT=0"
	CmdClassA       = "AT+CCLASS=0"
	CmdJoinModeOTAA = "AT+CJOINMODE=0"
	CmdSave         = "AT+CSAVE"
	CmdStartJoin    = "AT+DJOIN=1,0,8,3" // 入网成功后自动停止，8秒间隔，模组内部重试3次
	CmdJoinStatus   = "AT+DULSTAT?"
	CmdDownlink     = "AT+DRX?"
)

// 响应标记
const (
	JoinStatusPrefix = "+DULSTAT:"
	DownlinkPrefix   = "+DRX="
	MarkerSent       = "OK+SENT"
	MarkerError      = "ERROR"

	JoinCodeRejected = "05"
)

// UplinkRetransmissions 上行固定重传次数
const UplinkRetransmissions = 2

// 各命令的等待时间
const (
	WaitDefault  = 100 * time.Millisecond
	WaitReboot   = 2 * time.Second
	WaitJoin     = time.Second
	WaitStatus   = time.Second
	WaitUplink   = 2 * time.Second
	WaitDownlink = 200 * time.Millisecond
)

// CmdRegion 设置区域
func CmdRegion(region int) string {
	return fmt.Sprintf("AT+RREGION=%d", region)
}

// CmdDevEUI 设置DevEUI
func CmdDevEUI(devEUI string) string {
	return "AT+CDEVEUI=" + devEUI
}

// CmdAppEUI 设置AppEUI
func CmdAppEUI(appEUI string) string {
	return "AT+CAPPEUI=" + appEUI
}

// CmdAppKey 设置AppKey
func CmdAppKey(appKey string) string {
	return "AT+CAPPKEY=" + appKey
}

// CmdUplink 构造上行命令
func CmdUplink(confirm bool, length int, hexPayload string) string {
	c := 0
	if confirm {
		c = 1
	}
	return fmt.Sprintf("AT+DTRX=%d,%d,%d,%s", c, UplinkRetransmissions, length, hexPayload)
}
