package hardware

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SimulatedModemTestSuite struct {
	suite.Suite
	modem *SimulatedModem
}

func (s *SimulatedModemTestSuite) SetupTest() {
	s.modem = NewSimulatedModem(SimulatedModemConfig{
		JoinAfterPolls: 2,
		JoinStatus:     "04",
		ReadTimeout:    10 * time.Millisecond,
	})
}

func (s *SimulatedModemTestSuite) TearDownTest() {
	s.modem.Close()
}

// exchange 写入命令并读出全部响应行
func (s *SimulatedModemTestSuite) exchange(cmd string) []string {
	_, err := s.modem.Write([]byte(cmd + "\r"))
	s.Require().NoError(err)

	var out strings.Builder
	buf := make([]byte, 64)
	for {
		n, err := s.modem.Read(buf)
		out.Write(buf[:n])
		if err == io.EOF {
			break
		}
		s.Require().NoError(err)
	}

	var lines []string
	for _, l := range strings.Split(out.String(), "\r\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func (s *SimulatedModemTestSuite) TestConfigurationCommands() {
	for _, cmd := range []string{
		"AT+RREGION=3",
		"AT+CCLASS=0",
		"AT+CJOINMODE=0",
		"AT+CDEVEUI=0011223344556677",
		"AT+CAPPEUI=8899AABBCCDDEEFF",
		"AT+CAPPKEY=00000000000000000000000000000000",
		"AT+CSAVE",
		"AT+DJOIN=1,0,8,3",
	} {
		s.Equal([]string{"OK"}, s.exchange(cmd), cmd)
	}
}

func (s *SimulatedModemTestSuite) TestJoinAfterPolls() {
	s.exchange("AT+DJOIN=1,0,8,3")
	s.Contains(s.exchange("AT+DULSTAT?"), "+DULSTAT:02")
	s.Contains(s.exchange("AT+DULSTAT?"), "+DULSTAT:04")
}

func (s *SimulatedModemTestSuite) TestUplinkRequiresJoin() {
	s.Equal([]string{"ERROR"}, s.exchange("AT+DTRX=0,2,5,48656C6C6F"))

	s.exchange("AT+DULSTAT?")
	s.exchange("AT+DULSTAT?")
	s.Contains(s.exchange("AT+DTRX=0,2,5,48656C6C6F"), "OK+SENT")
}

func (s *SimulatedModemTestSuite) TestDownlinkQueue() {
	s.Contains(s.exchange("AT+DRX?"), "+DRX=0,")

	s.modem.QueueDownlink("Hello")
	s.Contains(s.exchange("AT+DRX?"), "+DRX=5,48656C6C6F")
	s.Contains(s.exchange("AT+DRX?"), "+DRX=0,")
}

func (s *SimulatedModemTestSuite) TestUnknownCommand() {
	s.Equal([]string{"ERROR"}, s.exchange("AT+FOO"))
	s.Equal([]string{"AT+FOO"}, s.modem.Commands())
}

func TestSimulatedModemSuite(t *testing.T) {
	suite.Run(t, new(SimulatedModemTestSuite))
}

func TestSimulatedModemThroughTransport(t *testing.T) {
	modem := NewSimulatedModem(SimulatedModemConfig{ReadTimeout: 10 * time.Millisecond})
	tr := NewSerialTransport(modem)
	defer tr.Close()

	require.NoError(t, tr.Write([]byte("AT+CSAVE\r")))
	assert.Equal(t, "OK\r\n", drainEventually(t, tr, "OK\r\n"))
}

func TestSimulatedModemClosed(t *testing.T) {
	modem := NewSimulatedModem(SimulatedModemConfig{})
	require.NoError(t, modem.Close())
	require.NoError(t, modem.Close())

	_, err := modem.Write([]byte("AT\r"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	_, err = modem.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
