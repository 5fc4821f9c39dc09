package lorawan

import (
	"time"
)

// Credentials OTAA入网参数，格式由模组校验
type Credentials struct {
	DevEUI string `json:"dev_eui"`
	AppEUI string `json:"app_eui"`
	AppKey string `json:"-"`
	Region int    `json:"region"`
}

// JoinState 入网状态
type JoinState int

const (
	JoinIdle JoinState = iota
	JoinConfiguring
	JoinJoining
	JoinJoined
	JoinFailed
	JoinTimedOut
)

// String 状态名
func (s JoinState) String() string {
	switch s {
	case JoinIdle:
		return "idle"
	case JoinConfiguring:
		return "configuring"
	case JoinJoining:
		return "joining"
	case JoinJoined:
		return "joined"
	case JoinFailed:
		return "failed"
	case JoinTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// Terminal 是否为终止状态
func (s JoinState) Terminal() bool {
	return s == JoinJoined || s == JoinFailed || s == JoinTimedOut
}

// MarshalText 以状态名序列化
func (s JoinState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// JoinOptions 入网轮询参数
type JoinOptions struct {
	MaxPolls     int
	PollInterval time.Duration
	SuccessCodes []string
}

// DefaultJoinOptions 默认轮询参数：最多30次，间隔2秒，03/04视为成功
func DefaultJoinOptions() JoinOptions {
	return JoinOptions{
		MaxPolls:     30,
		PollInterval: 2 * time.Second,
		SuccessCodes: []string{"03", "04"},
	}
}

func (o JoinOptions) withDefaults() JoinOptions {
	d := DefaultJoinOptions()
	if o.MaxPolls <= 0 {
		o.MaxPolls = d.MaxPolls
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if len(o.SuccessCodes) == 0 {
		o.SuccessCodes = d.SuccessCodes
	}
	return o
}

// JoinResult 一次入网尝试的结果
type JoinResult struct {
	State      JoinState     `json:"state"`
	Polls      int           `json:"polls"`
	StatusCode string        `json:"status_code,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// Joined 是否入网成功
func (r JoinResult) Joined() bool {
	return r.State == JoinJoined
}

// UplinkOutcome 上行响应判定
type UplinkOutcome int

const (
	UplinkSent UplinkOutcome = iota
	UplinkRejected
	UplinkAmbiguous // 既无 OK+SENT 也无 ERROR
)

// String 判定名
func (o UplinkOutcome) String() string {
	switch o {
	case UplinkSent:
		return "sent"
	case UplinkRejected:
		return "rejected"
	default:
		return "ambiguous"
	}
}

// 链路事件方向
const (
	DirectionJoin     = "JOIN"
	DirectionUplink   = "UPLINK"
	DirectionDownlink = "DOWNLINK"
)

// 链路事件状态
const (
	StatusJoined      = "joined"
	StatusFailed      = "failed"
	StatusTimeout     = "timeout"
	StatusSent        = "sent"
	StatusRejected    = "rejected"
	StatusAmbiguous   = "ambiguous"
	StatusReceived    = "received"
	StatusEmpty       = "empty"
	StatusMalformed   = "malformed"
	StatusDecodeError = "decode_error"
)

// Event 链路事件
type Event struct {
	Direction string
	Status    string
	Payload   string
	HexData   string
	Bytes     int
	Command   string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// EventRecorder 链路事件记录器
type EventRecorder interface {
	RecordEvent(e Event)
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(Event) {}

// MultiRecorder 同时转发给多个记录器
type MultiRecorder []EventRecorder

// RecordEvent 依次转发
func (m MultiRecorder) RecordEvent(e Event) {
	for _, r := range m {
		if r != nil {
			r.RecordEvent(e)
		}
	}
}
