package websocket

import (
	"github.com/wfunc/loracam/internal/lorawan"
)

// TraceLine 一行原始AT跟踪
type TraceLine struct {
	Direction string `json:"direction"`
	Line      string `json:"line"`
}

// LinkEventPayload 推送给客户端的链路事件
type LinkEventPayload struct {
	Direction  string `json:"direction"`
	Status     string `json:"status"`
	Payload    string `json:"payload,omitempty"`
	HexData    string `json:"hex_data,omitempty"`
	Bytes      int    `json:"bytes"`
	Command    string `json:"command,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  int64  `json:"timestamp"`
}

// RecordLine 实现 at.TraceSink
func (h *Hub) RecordLine(direction, line string) {
	h.publish(MessageTypeTrace, TraceLine{Direction: direction, Line: line})
}

// RecordEvent 实现 lorawan.EventRecorder
func (h *Hub) RecordEvent(e lorawan.Event) {
	payload := LinkEventPayload{
		Direction:  e.Direction,
		Status:     e.Status,
		Payload:    e.Payload,
		HexData:    e.HexData,
		Bytes:      e.Bytes,
		Command:    e.Command,
		DurationMs: e.Duration.Milliseconds(),
		Timestamp:  e.Timestamp.UnixMilli(),
	}
	if e.Err != nil {
		payload.Error = e.Err.Error()
	}
	h.publish(MessageTypeLinkEvent, payload)
}
