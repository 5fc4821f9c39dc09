package lorawan

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/wfunc/loracam/internal/at/attest"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"go.uber.org/zap"
)

var testCreds = Credentials{
	DevEUI: "0011223344556677",
	AppEUI: "8899AABBCCDDEEFF",
	AppKey: "00000000000000000000000000000000",
	Region: 3,
}

// modemScript 按轮询次数返回入网状态
type modemScript struct {
	polls      int
	statusAt   int    // 第几次轮询返回 status，0 表示从不
	status     string // 如 "+DULSTAT:04"
	silentKeys bool   // 密钥命令无响应
}

func (m *modemScript) respond(cmd string) []string {
	switch {
	case cmd == CmdJoinStatus:
		m.polls++
		if m.statusAt > 0 && m.polls == m.statusAt {
			return []string{m.status, "OK"}
		}
		return []string{"+DULSTAT:02", "OK"}
	case m.silentKeys && strings.HasPrefix(cmd, "AT+CAPPEUI="):
		return nil
	default:
		return []string{"OK"}
	}
}

type JoinTestSuite struct {
	suite.Suite
	clock *attest.FakeClock
}

func (s *JoinTestSuite) SetupTest() {
	s.clock = &attest.FakeClock{}
}

// setupSleeps 配置与入网请求阶段的等待次数
const setupSleeps = 9

// pollingSleeps 轮询阶段的间隔等待
func (s *JoinTestSuite) pollingSleeps() []time.Duration {
	var out []time.Duration
	sleeps := s.clock.Sleeps()
	if len(sleeps) <= setupSleeps {
		return out
	}
	for _, sl := range sleeps[setupSleeps:] {
		if sl == 2*time.Second {
			out = append(out, sl)
		}
	}
	return out
}

func (s *JoinTestSuite) newDriver(script *modemScript) (*Driver, *attest.ScriptedTransport, *recordingRecorder) {
	tr := attest.NewScriptedTransport(script.respond)
	rec := &recordingRecorder{}
	d := NewDriver(tr, Options{Clock: s.clock, Recorder: rec, Logger: zap.NewNop()})
	return d, tr, rec
}

// 第2次轮询返回04，恰好轮询2次后成功
func (s *JoinTestSuite) TestJoinedOnSecondPoll() {
	script := &modemScript{statusAt: 2, status: "+DULSTAT:04"}
	d, tr, rec := s.newDriver(script)

	ok, err := d.ConnectNetwork(testCreds)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(2, tr.Count(CmdJoinStatus))
	s.Len(s.pollingSleeps(), 1)

	s.Equal([]string{
		"AT+IREBOOT=0",
		"AT+RREGION=3",
		"AT+CCLASS=0",
		"AT+CJOINMODE=0",
		"AT+CDEVEUI=0011223344556677",
		"AT+CAPPEUI=8899AABBCCDDEEFF",
		"AT+CAPPKEY=00000000000000000000000000000000",
		"AT+CSAVE",
		"AT+DJOIN=1,0,8,3",
		"AT+DULSTAT?",
		"AT+DULSTAT?",
	}, tr.Writes())

	s.Require().Len(rec.events, 1)
	s.Equal(DirectionJoin, rec.events[0].Direction)
	s.Equal(StatusJoined, rec.events[0].Status)
}

// 第1次轮询返回05，立即失败不再轮询
func (s *JoinTestSuite) TestRejectedOnFirstPoll() {
	script := &modemScript{statusAt: 1, status: "+DULSTAT:05"}
	d, tr, _ := s.newDriver(script)

	result, err := d.Join(testCreds)
	s.Require().NoError(err)
	s.Equal(JoinFailed, result.State)
	s.Equal(1, result.Polls)
	s.Equal("05", result.StatusCode)
	s.True(apperrors.Is(result.Err, apperrors.ErrJoinRejected))
	s.Equal(1, tr.Count(CmdJoinStatus))
	s.Empty(s.pollingSleeps())
}

// 30次轮询无结果，超时且轮询期间共等待60秒
func (s *JoinTestSuite) TestTimedOutAfterThirtyPolls() {
	d, tr, rec := s.newDriver(&modemScript{})

	result, err := d.Join(testCreds)
	s.Require().NoError(err)
	s.Equal(JoinTimedOut, result.State)
	s.False(result.Joined())
	s.Equal(30, result.Polls)
	s.True(apperrors.Is(result.Err, apperrors.ErrProtocolTimeout))
	s.Equal(30, tr.Count(CmdJoinStatus))
	s.Len(s.pollingSleeps(), 30)

	var polling time.Duration
	for _, sl := range s.pollingSleeps() {
		polling += sl
	}
	s.Equal(60*time.Second, polling)
	s.Equal(StatusTimeout, rec.events[0].Status)
}

func (s *JoinTestSuite) TestStatus03Accepted() {
	d, _, _ := s.newDriver(&modemScript{statusAt: 1, status: "+DULSTAT:03"})

	result, err := d.Join(testCreds)
	s.Require().NoError(err)
	s.Equal(JoinJoined, result.State)
	s.Equal("03", result.StatusCode)
}

func (s *JoinTestSuite) TestSuccessCodesConfigurable() {
	tr := attest.NewScriptedTransport((&modemScript{statusAt: 1, status: "+DULSTAT:03"}).respond)
	d := NewDriver(tr, Options{
		Clock:  s.clock,
		Logger: zap.NewNop(),
		Join:   JoinOptions{MaxPolls: 3, SuccessCodes: []string{"04"}},
	})

	result, err := d.Join(testCreds)
	s.Require().NoError(err)
	s.Equal(JoinTimedOut, result.State)
	s.Equal(3, result.Polls)
}

// 密钥配置无响应时立即中止
func (s *JoinTestSuite) TestEmptyKeyResponseAborts() {
	d, tr, _ := s.newDriver(&modemScript{silentKeys: true})

	result, err := d.Join(testCreds)
	s.Require().NoError(err)
	s.Equal(JoinFailed, result.State)
	s.True(apperrors.Is(result.Err, apperrors.ErrJoinConfig))
	s.Equal(0, tr.Count(CmdSave))
	s.Equal(0, tr.Count(CmdStartJoin))
}

func (s *JoinTestSuite) TestSettleTimes() {
	d, _, _ := s.newDriver(&modemScript{statusAt: 1, status: "+DULSTAT:04"})

	_, err := d.Join(testCreds)
	s.Require().NoError(err)

	sleeps := s.clock.Sleeps()
	s.Require().Len(sleeps, 10)
	s.Equal(WaitReboot, sleeps[0])
	s.Equal(WaitJoin, sleeps[8])
	s.Equal(WaitStatus, sleeps[9])
}

func (s *JoinTestSuite) TestRegionPassedThrough() {
	d, tr, _ := s.newDriver(&modemScript{statusAt: 1, status: "+DULSTAT:04"})

	// 频段不在本地校验，原样下发给模组
	creds := testCreds
	creds.Region = 0
	_, err := d.Join(creds)
	s.Require().NoError(err)
	s.Equal("AT+RREGION=0", tr.Writes()[1])
	s.Equal(0, tr.Count("AT+RREGION=3"))
}

func (s *JoinTestSuite) TestTransportErrorPropagates() {
	tr := attest.NewScriptedTransport(attest.Lines("OK"))
	tr.WriteErr = apperrors.Wrap(errors.New("broken pipe"), apperrors.ErrSerialPortWrite)
	d := NewDriver(tr, Options{Clock: s.clock, Logger: zap.NewNop()})

	ok, err := d.ConnectNetwork(testCreds)
	s.False(ok)
	s.True(apperrors.Is(err, apperrors.ErrSerialPortWrite))
}

func (s *JoinTestSuite) TestJoinStateNames() {
	s.Equal("idle", JoinIdle.String())
	s.Equal("timeout", JoinTimedOut.String())
	s.True(JoinJoined.Terminal())
	s.False(JoinJoining.Terminal())
}

func TestJoinSuite(t *testing.T) {
	suite.Run(t, new(JoinTestSuite))
}
