package lorawan

import (
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/loracam/internal/at"
	"github.com/wfunc/loracam/internal/codec"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"github.com/wfunc/loracam/internal/logger"
	"go.uber.org/zap"
)

// Options 驱动可选参数
type Options struct {
	Clock        at.Clock
	Trace        at.TraceSink
	Recorder     EventRecorder
	Logger       *zap.Logger
	Join         JoinOptions
	StrictUplink bool // 为 true 时无明确标记的上行视为失败
}

// Driver LoRaWAN模组驱动
//
// Driver 不做并发保护，同一时刻只能有一个调用方。
type Driver struct {
	transport at.Transport
	framer    *at.Framer
	clock     at.Clock
	recorder  EventRecorder
	logger    *zap.Logger
	opts      Options

	closeOnce sync.Once
	closeErr  error
}

// NewDriver 基于已打开的传输层创建驱动
func NewDriver(t at.Transport, opts Options) *Driver {
	if opts.Clock == nil {
		opts.Clock = at.SystemClock{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.WithModule("lora")
	}
	opts.Join = opts.Join.withDefaults()

	return &Driver{
		transport: t,
		framer:    at.NewFramer(t, opts.Clock, opts.Trace),
		clock:     opts.Clock,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		opts:      opts,
	}
}

// SetTrace 替换跟踪输出
func (d *Driver) SetTrace(trace at.TraceSink) {
	d.framer.SetTrace(trace)
}

// ConnectNetwork 入网，成功返回 true
func (d *Driver) ConnectNetwork(creds Credentials) (bool, error) {
	result, err := d.Join(creds)
	return result.Joined(), err
}

// Join 入网并返回详细结果
func (d *Driver) Join(creds Credentials) (JoinResult, error) {
	joiner := NewJoiner(d.framer, d.clock, d.opts.Join, d.logger)
	result, err := joiner.Run(creds)

	status := StatusFailed
	switch result.State {
	case JoinJoined:
		status = StatusJoined
	case JoinTimedOut:
		status = StatusTimeout
	}
	d.record(Event{
		Direction: DirectionJoin,
		Status:    status,
		Payload:   fmt.Sprintf("polls=%d status=%s", result.Polls, result.StatusCode),
		Command:   CmdStartJoin,
		Err:       result.Err,
		Duration:  result.Duration,
	})
	return result, err
}

// SendData 发送上行文本
func (d *Driver) SendData(text string, confirm bool) (bool, error) {
	outcome, err := d.SendUplink(text, confirm)
	if err != nil {
		return false, err
	}
	return d.Accepted(outcome), nil
}

// Accepted 判定上行结果是否算发送成功，无标记的响应取决于 StrictUplink
func (d *Driver) Accepted(outcome UplinkOutcome) bool {
	switch outcome {
	case UplinkSent:
		return true
	case UplinkRejected:
		return false
	default:
		return !d.opts.StrictUplink
	}
}

// SendUplink 发送上行文本并返回判定结果
func (d *Driver) SendUplink(text string, confirm bool) (UplinkOutcome, error) {
	start := time.Now()
	hexPayload, length := codec.Encode(text)
	cmd := CmdUplink(confirm, length, hexPayload)

	resp, err := d.framer.Send(cmd, WaitUplink)
	ev := Event{
		Direction: DirectionUplink,
		Payload:   text,
		HexData:   hexPayload,
		Bytes:     length,
		Command:   cmd,
	}
	if err != nil {
		ev.Status = StatusFailed
		ev.Err = err
		ev.Duration = time.Since(start)
		d.record(ev)
		return UplinkRejected, err
	}

	outcome := ClassifyUplink(resp)
	ev.Status = outcome.String()
	ev.Duration = time.Since(start)
	switch outcome {
	case UplinkRejected:
		ev.Err = apperrors.New(apperrors.ErrUplinkRejected, resp...)
	case UplinkAmbiguous:
		d.logger.Warn("上行响应中没有发送标记",
			zap.Strings("lines", resp),
			zap.Bool("strict", d.opts.StrictUplink))
	}
	d.record(ev)
	return outcome, nil
}

// ReceiveData 查询下行缓冲，有数据时返回文本
func (d *Driver) ReceiveData() (string, bool, error) {
	start := time.Now()
	resp, err := d.framer.Send(CmdDownlink, WaitDownlink)
	if err != nil {
		d.record(Event{
			Direction: DirectionDownlink,
			Status:    StatusFailed,
			Command:   CmdDownlink,
			Err:       err,
			Duration:  time.Since(start),
		})
		return "", false, err
	}

	frame, issues := scanDownlink(resp)
	for _, issue := range issues {
		status := StatusMalformed
		if apperrors.Is(issue.err, apperrors.ErrEncoding) {
			status = StatusDecodeError
		}
		d.logger.Warn("下行数据解析失败，跳过该行",
			zap.String("line", issue.line),
			zap.Error(issue.err))
		d.record(Event{
			Direction: DirectionDownlink,
			Status:    status,
			HexData:   issue.line,
			Command:   CmdDownlink,
			Err:       issue.err,
			Duration:  time.Since(start),
		})
	}

	if frame == nil {
		if len(issues) == 0 {
			d.record(Event{
				Direction: DirectionDownlink,
				Status:    StatusEmpty,
				Command:   CmdDownlink,
				Duration:  time.Since(start),
			})
		}
		return "", false, nil
	}

	d.record(Event{
		Direction: DirectionDownlink,
		Status:    StatusReceived,
		Payload:   frame.Text,
		HexData:   frame.Hex,
		Bytes:     frame.Length,
		Command:   CmdDownlink,
		Duration:  time.Since(start),
	})
	return frame.Text, true, nil
}

// SendAT 发送任意AT命令并返回原始响应行
func (d *Driver) SendAT(cmd string, wait time.Duration) (at.Response, error) {
	return d.framer.Send(cmd, wait)
}

// Close 释放串口，可重复调用
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.transport.Close()
		d.logger.Info("LoRa驱动已关闭")
	})
	return d.closeErr
}

func (d *Driver) record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	fields := []zap.Field{
		zap.String("payload", ev.Payload),
		zap.Int("bytes", ev.Bytes),
		zap.Duration("duration", ev.Duration),
	}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}
	logger.LogLinkEvent(ev.Direction, ev.Status, fields...)

	d.recorder.RecordEvent(ev)
}
