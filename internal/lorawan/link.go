package lorawan

import (
	"strconv"
	"strings"

	"github.com/wfunc/loracam/internal/at"
	"github.com/wfunc/loracam/internal/codec"
	apperrors "github.com/wfunc/loracam/internal/errors"
)

// ClassifyUplink 按行顺序查找发送标记，先出现的标记决定结果
func ClassifyUplink(resp at.Response) UplinkOutcome {
	for _, line := range resp {
		if strings.Contains(line, MarkerSent) {
			return UplinkSent
		}
		if strings.Contains(line, MarkerError) {
			return UplinkRejected
		}
	}
	return UplinkAmbiguous
}

// Downlink 一条下行帧
type Downlink struct {
	Length int
	Hex    string
	Text   string
}

// ParseDownlinkLine 解析 +DRX=<len>,<hex>[,...]，载荷之后的字段忽略
func ParseDownlinkLine(line string) (Downlink, error) {
	fields := strings.Split(strings.TrimPrefix(line, DownlinkPrefix), ",")
	if len(fields) < 2 {
		return Downlink{}, apperrors.Newf(apperrors.ErrMalformedResponse, "缺少载荷字段: %q", line)
	}

	length, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || length < 0 {
		return Downlink{}, apperrors.Newf(apperrors.ErrMalformedResponse, "无法解析长度字段: %q", line)
	}

	return Downlink{Length: length, Hex: strings.TrimSpace(fields[1])}, nil
}

// downlinkIssue 扫描中跳过的行
type downlinkIssue struct {
	line string
	err  error
}

// scanDownlink 在响应中查找下行数据
//
// 解析或解码失败的行被跳过并返回给调用方记录；第一条合法的 +DRX= 行决定结果，
// 长度为0时表示无数据。
func scanDownlink(resp at.Response) (*Downlink, []downlinkIssue) {
	var issues []downlinkIssue
	for _, line := range resp {
		if !strings.HasPrefix(line, DownlinkPrefix) {
			continue
		}

		frame, err := ParseDownlinkLine(line)
		if err != nil {
			issues = append(issues, downlinkIssue{line, err})
			continue
		}
		if frame.Length == 0 {
			return nil, issues
		}

		text, err := codec.Decode(frame.Hex)
		if err != nil {
			issues = append(issues, downlinkIssue{line, err})
			continue
		}
		frame.Text = text
		return &frame, issues
	}
	return nil, issues
}
