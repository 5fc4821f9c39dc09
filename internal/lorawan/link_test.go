package lorawan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/loracam/internal/at"
	"github.com/wfunc/loracam/internal/at/attest"
	apperrors "github.com/wfunc/loracam/internal/errors"
	"go.uber.org/zap"
)

type recordingRecorder struct {
	events []Event
}

func (r *recordingRecorder) RecordEvent(e Event) {
	r.events = append(r.events, e)
}

func newTestDriver(r attest.Responder, strict bool) (*Driver, *attest.ScriptedTransport, *attest.FakeClock, *recordingRecorder) {
	tr := attest.NewScriptedTransport(r)
	clock := &attest.FakeClock{}
	rec := &recordingRecorder{}
	d := NewDriver(tr, Options{Clock: clock, Recorder: rec, Logger: zap.NewNop(), StrictUplink: strict})
	return d, tr, clock, rec
}

func TestSendDataHello(t *testing.T) {
	d, tr, clock, rec := newTestDriver(attest.Lines("OK+SENT"), false)

	ok, err := d.SendData("Hello", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"AT+DTRX=0,2,5,48656C6C6F"}, tr.Writes())
	assert.Equal(t, WaitUplink, clock.Total())

	require.Len(t, rec.events, 1)
	assert.Equal(t, DirectionUplink, rec.events[0].Direction)
	assert.Equal(t, StatusSent, rec.events[0].Status)
	assert.Equal(t, "48656C6C6F", rec.events[0].HexData)
	assert.Equal(t, 5, rec.events[0].Bytes)
}

func TestSendDataConfirmed(t *testing.T) {
	d, tr, _, _ := newTestDriver(attest.Lines("OK", "OK+SENT"), false)

	ok, err := d.SendData("Hi", true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"AT+DTRX=1,2,2,4869"}, tr.Writes())
}

func TestSendDataError(t *testing.T) {
	d, _, _, rec := newTestDriver(attest.Lines("ERROR"), false)

	ok, err := d.SendData("Hello", false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, StatusRejected, rec.events[0].Status)
	assert.True(t, apperrors.Is(rec.events[0].Err, apperrors.ErrUplinkRejected))
}

func TestSendDataAmbiguous(t *testing.T) {
	d, _, _, rec := newTestDriver(attest.Lines("OK"), false)
	ok, err := d.SendData("Hello", false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusAmbiguous, rec.events[0].Status)

	strict, _, _, _ := newTestDriver(attest.Lines("OK"), true)
	ok, err = strict.SendData("Hello", false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassifyUplink(t *testing.T) {
	testCases := []struct {
		resp at.Response
		want UplinkOutcome
	}{
		{at.Response{"OK+SENT"}, UplinkSent},
		{at.Response{"ERROR"}, UplinkRejected},
		{at.Response{"+CME ERROR:1"}, UplinkRejected},
		{at.Response{"OK", "OK+SENT", "ERROR"}, UplinkSent},
		{at.Response{"ERROR", "OK+SENT"}, UplinkRejected},
		{at.Response{"OK"}, UplinkAmbiguous},
		{at.Response{}, UplinkAmbiguous},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, ClassifyUplink(tc.resp), "%v", tc.resp)
	}
}

func TestReceiveDataHello(t *testing.T) {
	d, tr, clock, rec := newTestDriver(attest.Lines("+DRX=5,48656C6C6F", "OK"), false)

	text, ok, err := d.ReceiveData()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"AT+DRX?"}, tr.Writes())
	assert.Equal(t, WaitDownlink, clock.Total())
	assert.Equal(t, StatusReceived, rec.events[0].Status)
}

// 载荷之后的附加字段（如RSSI）不影响解码
func TestReceiveDataTrailingField(t *testing.T) {
	d, _, _, rec := newTestDriver(attest.Lines("+DRX=5,48656C6C6F,-87", "OK"), false)

	text, ok, err := d.ReceiveData()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello", text)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusReceived, rec.events[0].Status)
}

func TestReceiveDataZeroLength(t *testing.T) {
	d, _, _, rec := newTestDriver(attest.Lines("+DRX=0,"), false)

	text, ok, err := d.ReceiveData()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Equal(t, StatusEmpty, rec.events[0].Status)
}

func TestReceiveDataNoMatchingLine(t *testing.T) {
	d, _, _, _ := newTestDriver(attest.Lines("OK"), false)

	_, ok, err := d.ReceiveData()
	require.NoError(t, err)
	assert.False(t, ok)
}

// 格式错误的行被跳过，继续扫描后续行
func TestReceiveDataSkipsMalformedLine(t *testing.T) {
	d, _, _, rec := newTestDriver(attest.Lines("+DRX=x,00", "+DRX=2,4869"), false)

	text, ok, err := d.ReceiveData()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hi", text)

	require.Len(t, rec.events, 2)
	assert.Equal(t, StatusMalformed, rec.events[0].Status)
	assert.True(t, apperrors.Is(rec.events[0].Err, apperrors.ErrMalformedResponse))
	assert.Equal(t, StatusReceived, rec.events[1].Status)
}

// 解码失败视为无数据
func TestReceiveDataDecodeError(t *testing.T) {
	d, _, _, rec := newTestDriver(attest.Lines("+DRX=2,48G"), false)

	_, ok, err := d.ReceiveData()
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusDecodeError, rec.events[0].Status)
	assert.True(t, apperrors.Is(rec.events[0].Err, apperrors.ErrEncoding))
}

func TestParseDownlinkLine(t *testing.T) {
	frame, err := ParseDownlinkLine("+DRX=5,48656C6C6F")
	require.NoError(t, err)
	assert.Equal(t, 5, frame.Length)
	assert.Equal(t, "48656C6C6F", frame.Hex)

	frame, err = ParseDownlinkLine("+DRX=2,4869,-87,2")
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Length)
	assert.Equal(t, "4869", frame.Hex)

	for _, line := range []string{"+DRX=5", "+DRX=,00", "+DRX=-1,00"} {
		_, err := ParseDownlinkLine(line)
		assert.True(t, apperrors.Is(err, apperrors.ErrMalformedResponse), line)
	}
}

func TestDriverCloseIdempotent(t *testing.T) {
	d, tr, _, _ := newTestDriver(attest.Lines("OK"), false)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, tr.Closes())

	_, err := d.SendData("Hello", false)
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortClosed))
	_, _, err = d.ReceiveData()
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortClosed))
}

func TestSendAT(t *testing.T) {
	d, tr, clock, _ := newTestDriver(attest.Lines("+CGMR=1.0", "OK"), false)

	resp, err := d.SendAT("AT+CGMR?", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, at.Response{"+CGMR=1.0", "OK"}, resp)
	assert.Equal(t, []string{"AT+CGMR?"}, tr.Writes())
	assert.Len(t, clock.Sleeps(), 1)
}
