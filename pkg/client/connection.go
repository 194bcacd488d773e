// Package client holds the records of connected control clients and the
// readiness-descriptor vector the poller hands to poll(2).
package client

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// NoStation marks a client that has not tuned to any station yet.
const NoStation = -1

// A Connection pairs a client's TCP control socket with the UDP address
// song data is delivered to. Station is the index of the station the client
// is tuned to, or NoStation. If Station != NoStation the connection appears
// in exactly that station's subscriber list and nowhere else.
type Connection struct {
	Conn    net.Conn
	UDPAddr *net.UDPAddr
	Station int
}

// NewConnection builds the record for a freshly accepted control socket.
// The delivery address is the TCP peer's IP with the port replaced by the
// port announced in the client's Hello.
func NewConnection(conn net.Conn, udpPort uint16) (*Connection, error) {
	peer, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected peer address %v", conn.RemoteAddr())
	}
	return &Connection{
		Conn: conn,
		UDPAddr: &net.UDPAddr{
			IP:   peer.IP,
			Port: int(udpPort),
			Zone: peer.Zone,
		},
		Station: NoStation,
	}, nil
}

// DupFd duplicates the descriptor behind a socket so it can sit in the
// poller's descriptor array independently of the runtime's own copy. The
// caller owns the returned descriptor.
func DupFd(sc syscall.Conn) (int32, error) {
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var (
		dup    int
		dupErr error
	)
	err = raw.Control(func(fd uintptr) {
		dup, dupErr = unix.Dup(int(fd))
		if dupErr == nil {
			unix.CloseOnExec(dup)
		}
	})
	if err != nil {
		return -1, err
	}
	if dupErr != nil {
		return -1, fmt.Errorf("dup: %w", dupErr)
	}
	return int32(dup), nil
}
