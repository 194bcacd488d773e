// Package protocol implements the framed binary control protocol spoken
// between the Snowcast server and its clients. All multi-byte integers are
// big-endian. Commands flow client to server, replies server to client.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	snowcast "github.com/ringtack/snowcast"
)

// Command tags.
const (
	MessageHello      uint8 = 0
	MessageSetStation uint8 = 1
)

// Reply tags.
const (
	ReplyWelcome  uint8 = 0
	ReplyAnnounce uint8 = 1
	ReplyInvalid  uint8 = 2
)

// ReadTimeout bounds every receive call so a misbehaving peer cannot wedge
// a worker.
const ReadTimeout = 100 * time.Millisecond

// MaxStringLen is the largest song name or reason string the wire format
// can carry (length is a single byte).
const MaxStringLen = 255

// A Command is a message sent from a client to the server.
type Command interface {
	commandTag() uint8
}

// Hello announces the UDP port on which the client listens for song data.
type Hello struct {
	UDPPort uint16
}

// SetStation tunes the client to the given station.
type SetStation struct {
	Station uint16
}

func (Hello) commandTag() uint8      { return MessageHello }
func (SetStation) commandTag() uint8 { return MessageSetStation }

// A Reply is a message sent from the server to a client.
type Reply interface {
	replyTag() uint8
}

// Welcome acknowledges a Hello and carries the station count.
type Welcome struct {
	NumStations uint16
}

// Announce carries the name of the song now playing on the client's station.
type Announce struct {
	SongName string
}

// InvalidCommand reports a rejected command; the server closes the
// connection after sending it.
type InvalidCommand struct {
	Reason string
}

func (Welcome) replyTag() uint8        { return ReplyWelcome }
func (Announce) replyTag() uint8       { return ReplyAnnounce }
func (InvalidCommand) replyTag() uint8 { return ReplyInvalid }

// SendCommand writes a single command message.
func SendCommand(conn net.Conn, cmd Command) error {
	buf := make([]byte, 3)
	buf[0] = cmd.commandTag()
	switch c := cmd.(type) {
	case Hello:
		binary.BigEndian.PutUint16(buf[1:], c.UDPPort)
	case SetStation:
		binary.BigEndian.PutUint16(buf[1:], c.Station)
	default:
		return fmt.Errorf("%w: unsupported command %T", snowcast.ErrProtocol, cmd)
	}
	return writeAll(conn, buf)
}

// RecvCommand reads a single command message. The read deadline applies to
// the whole call; a clean peer close on the tag byte is reported as
// ErrPeerClosed so the caller can drop the client quietly.
func RecvCommand(conn net.Conn) (Command, error) {
	// Some conns (net.Pipe) refuse a deadline once either end is closed;
	// the read below still tells a peer close from a local one.
	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	tag, err := readTag(conn)
	if err != nil {
		return nil, err
	}
	var val uint16
	switch tag {
	case MessageHello, MessageSetStation:
		if val, err = readUint16(conn); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown command tag %d", snowcast.ErrProtocol, tag)
	}
	if tag == MessageHello {
		return Hello{UDPPort: val}, nil
	}
	return SetStation{Station: val}, nil
}

// SendReply writes a single reply message. String payloads longer than
// MaxStringLen do not fit the wire format and are rejected.
func SendReply(conn net.Conn, reply Reply) error {
	switch r := reply.(type) {
	case Welcome:
		buf := make([]byte, 3)
		buf[0] = ReplyWelcome
		binary.BigEndian.PutUint16(buf[1:], r.NumStations)
		return writeAll(conn, buf)
	case Announce:
		return sendString(conn, ReplyAnnounce, r.SongName)
	case InvalidCommand:
		return sendString(conn, ReplyInvalid, r.Reason)
	default:
		return fmt.Errorf("%w: unsupported reply %T", snowcast.ErrProtocol, reply)
	}
}

// RecvReply reads a single reply message under the same deadline rules as
// RecvCommand.
func RecvReply(conn net.Conn) (Reply, error) {
	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	tag, err := readTag(conn)
	if err != nil {
		return nil, err
	}
	switch tag {
	case ReplyWelcome:
		val, err := readUint16(conn)
		if err != nil {
			return nil, err
		}
		return Welcome{NumStations: val}, nil
	case ReplyAnnounce, ReplyInvalid:
		str, err := readString(conn)
		if err != nil {
			return nil, err
		}
		if tag == ReplyAnnounce {
			return Announce{SongName: str}, nil
		}
		return InvalidCommand{Reason: str}, nil
	default:
		return nil, fmt.Errorf("%w: unknown reply tag %d", snowcast.ErrProtocol, tag)
	}
}

func sendString(conn net.Conn, tag uint8, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: string payload of %d bytes does not fit", snowcast.ErrProtocol, len(s))
	}
	buf := make([]byte, 2+len(s))
	buf[0] = tag
	buf[1] = uint8(len(s))
	copy(buf[2:], s)
	return writeAll(conn, buf)
}

// readTag reads the leading tag byte, distinguishing a clean close from a
// mid-stream failure.
func readTag(conn net.Conn) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, snowcast.ErrPeerClosed
		}
		return 0, recvErr(err)
	}
	return b[0], nil
}

func readUint16(conn net.Conn) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(conn, b[:]); err != nil {
		return 0, recvErr(err)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readString(conn net.Conn) (string, error) {
	var l [1]byte
	if _, err := io.ReadFull(conn, l[:]); err != nil {
		return "", recvErr(err)
	}
	buf := make([]byte, l[0])
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", recvErr(err)
	}
	return string(buf), nil
}

// recvErr classifies a read failure past the tag byte. A timeout maps to
// ErrTimeout; a peer close mid-message is a protocol violation, not a clean
// close.
func recvErr(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return fmt.Errorf("%w: %v", snowcast.ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated message", snowcast.ErrProtocol)
	}
	return fmt.Errorf("recv: %w", err)
}

func writeAll(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		buf = buf[n:]
	}
	return nil
}
