package lorawan

import (
	"strings"
	"time"

	"github.com/wfunc/loracam/internal/at"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"go.uber.org/zap"
)

// Joiner OTAA入网状态机
type Joiner struct {
	framer *at.Framer
	clock  at.Clock
	opts   JoinOptions
	logger *zap.Logger

	state JoinState
}

// NewJoiner 创建入网状态机
func NewJoiner(framer *at.Framer, clock at.Clock, opts JoinOptions, l *zap.Logger) *Joiner {
	if clock == nil {
		clock = at.SystemClock{}
	}
	return &Joiner{
		framer: framer,
		clock:  clock,
		opts:   opts.withDefaults(),
		logger: l,
	}
}

// State 当前状态
func (j *Joiner) State() JoinState {
	return j.state
}

type configStep struct {
	cmd      string
	wait     time.Duration
	required bool // 空响应时中止入网
}

// Run 执行一次完整的入网流程
//
// 串口错误通过 error 返回；入网被拒绝、配置失败与轮询超时只体现在 JoinResult 中。
func (j *Joiner) Run(creds Credentials) (JoinResult, error) {
	start := time.Now()
	result := JoinResult{}
	finish := func(state JoinState, err error) JoinResult {
		j.state = state
		result.State = state
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	region := creds.Region

	j.state = JoinConfiguring
	j.logger.Info("开始配置LoRa模组", zap.Int("region", region), zap.String("dev_eui", creds.DevEUI))

	steps := []configStep{
		{CmdReboot, WaitReboot, false},
		{CmdRegion(region), WaitDefault, false},
		{CmdClassA, WaitDefault, false},
		{CmdJoinModeOTAA, WaitDefault, false},
		{CmdDevEUI(creds.DevEUI), WaitDefault, true},
		{CmdAppEUI(creds.AppEUI), WaitDefault, true},
		{CmdAppKey(creds.AppKey), WaitDefault, true},
		{CmdSave, WaitDefault, false},
	}
	for _, step := range steps {
		resp, err := j.framer.Send(step.cmd, step.wait)
		if err != nil {
			return finish(JoinFailed, err), err
		}
		if step.required && resp.Empty() {
			name := step.cmd
			if i := strings.IndexByte(name, '='); i >= 0 {
				name = name[:i]
			}
			j.logger.Warn("入网参数配置无响应", zap.String("command", name))
			return finish(JoinFailed, apperrors.New(apperrors.ErrJoinConfig, name, "空响应")), nil
		}
	}

	j.state = JoinJoining
	j.logger.Info("开始入网请求")
	if _, err := j.framer.Send(CmdStartJoin, WaitJoin); err != nil {
		return finish(JoinFailed, err), err
	}

	for poll := 1; poll <= j.opts.MaxPolls; poll++ {
		resp, err := j.framer.Send(CmdJoinStatus, WaitStatus)
		if err != nil {
			return finish(JoinFailed, err), err
		}
		result.Polls = poll

		for _, line := range resp {
			if code, ok := j.matchSuccess(line); ok {
				result.StatusCode = code
				j.logger.Info("入网成功", zap.Int("polls", poll), zap.String("status", code))
				return finish(JoinJoined, nil), nil
			}
			if strings.Contains(line, JoinStatusPrefix+JoinCodeRejected) {
				result.StatusCode = JoinCodeRejected
				j.logger.Warn("入网失败，请检查密钥或网关覆盖", zap.Int("polls", poll))
				return finish(JoinFailed, apperrors.New(apperrors.ErrJoinRejected, line)), nil
			}
		}

		j.clock.Sleep(j.opts.PollInterval)
	}

	j.logger.Warn("入网超时", zap.Int("polls", result.Polls))
	return finish(JoinTimedOut, apperrors.Newf(apperrors.ErrProtocolTimeout, "%d 次轮询无结果", result.Polls)), nil
}

func (j *Joiner) matchSuccess(line string) (string, bool) {
	for _, code := range j.opts.SuccessCodes {
		if strings.Contains(line, JoinStatusPrefix+code) {
			return code, true
		}
	}
	return "", false
}
