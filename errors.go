package snowcast

import "errors"

var (
	ErrProtocol       = errors.New("malformed or unknown message")
	ErrTimeout        = errors.New("read deadline exceeded")
	ErrPeerClosed     = errors.New("peer closed the connection")
	ErrInvalidStation = errors.New("station index out of range")
	ErrStopped        = errors.New("server is stopped")
)
