package protocol

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snowcast "github.com/ringtack/snowcast"
)

func TestCommandRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
	}{
		{name: "hello", cmd: Hello{UDPPort: 8080}},
		{name: "hello zero port", cmd: Hello{UDPPort: 0}},
		{name: "set station", cmd: SetStation{Station: 5}},
		{name: "set station max", cmd: SetStation{Station: 65535}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := net.Pipe()
			defer a.Close()
			defer b.Close()

			go func() {
				_ = SendCommand(a, tt.cmd)
			}()
			got, err := RecvCommand(b)
			require.Nil(t, err)
			assert.Equal(t, tt.cmd, got)
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
	}{
		{name: "welcome", reply: Welcome{NumStations: 1}},
		{name: "announce", reply: Announce{SongName: "\"a.mp3\" [switched to Station 0]"}},
		{name: "announce empty", reply: Announce{SongName: ""}},
		{name: "announce max length", reply: Announce{SongName: strings.Repeat("x", MaxStringLen)}},
		{name: "invalid command", reply: InvalidCommand{Reason: "Requested station 5, but server only has stations [0, 1)."}},
		{name: "invalid command empty", reply: InvalidCommand{Reason: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := net.Pipe()
			defer a.Close()
			defer b.Close()

			go func() {
				_ = SendReply(a, tt.reply)
			}()
			got, err := RecvReply(b)
			require.Nil(t, err)
			assert.Equal(t, tt.reply, got)
		})
	}
}

// The handshake bytes of a client announcing UDP port 8080 must be exactly
// 00 1F 90, and the reply for a single-station server exactly 00 00 01.
func TestWireLayout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_ = SendCommand(a, Hello{UDPPort: 8080})
	}()
	buf := make([]byte, 3)
	_ = b.SetReadDeadline(time.Now().Add(time.Second))
	_, err := b.Read(buf)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x00, 0x1F, 0x90}, buf)

	go func() {
		_ = SendReply(a, Welcome{NumStations: 1})
	}()
	_, err = b.Read(buf)
	require.Nil(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x01}, buf)
}

func TestRecvCommandUnknownTag(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte{9, 0, 0})
	}()
	_, err := RecvCommand(b)
	assert.ErrorIs(t, err, snowcast.ErrProtocol)
}

func TestRecvCommandTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	start := time.Now()
	_, err := RecvCommand(b)
	assert.ErrorIs(t, err, snowcast.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), ReadTimeout)
}

func TestRecvCommandPeerClosed(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	a.Close()
	_, err := RecvCommand(b)
	assert.ErrorIs(t, err, snowcast.ErrPeerClosed)
}

func TestRecvCommandTruncated(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte{MessageSetStation, 0x00})
		a.Close()
	}()
	_, err := RecvCommand(b)
	assert.ErrorIs(t, err, snowcast.ErrProtocol)
}

func TestSendReplyTooLong(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	err := SendReply(a, Announce{SongName: strings.Repeat("x", MaxStringLen+1)})
	assert.ErrorIs(t, err, snowcast.ErrProtocol)
}
