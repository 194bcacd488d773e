package client

import (
	"fmt"
	"net"
	"syscall"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Vector keeps two sequences exactly synchronized, offset by one: record i
// is tracked by descriptor slot i+1, while slot 0 is the listening socket.
// The separation exists because poll(2) wants one contiguous descriptor
// array. Add and Remove are the only mutators, so the offset invariant is
// enforced in this file alone. The vector is not internally synchronized;
// callers hold the registry lock.
type Vector struct {
	conns   []*Connection
	pfds    []unix.PollFd
	initial int
}

// NewVector seeds the descriptor array with the listening socket in slot 0.
func NewVector(initial int, listenerFd int32) *Vector {
	if initial < 1 {
		initial = 1
	}
	v := &Vector{
		conns:   make([]*Connection, 0, initial),
		pfds:    make([]unix.PollFd, 1, initial+1),
		initial: initial,
	}
	v.pfds[0] = unix.PollFd{Fd: listenerFd, Events: unix.POLLIN}
	return v
}

// Add appends a record and its readiness slot, doubling capacity when full.
// Returns the new record's index.
func (v *Vector) Add(c *Connection) (int, error) {
	sc, ok := c.Conn.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("connection %v does not expose a descriptor", c.Conn.RemoteAddr())
	}
	fd, err := DupFd(sc)
	if err != nil {
		return -1, err
	}
	if len(v.conns) == cap(v.conns) {
		v.resize(2 * cap(v.conns))
	}
	v.conns = append(v.conns, c)
	v.pfds = append(v.pfds, unix.PollFd{Fd: fd, Events: unix.POLLIN})
	return len(v.conns) - 1, nil
}

// Remove swaps the record (and its descriptor slot) with the last one,
// shrinks both sequences, and closes the removed socket. Subscriber lists
// are the caller's responsibility.
func (v *Vector) Remove(index int) error {
	if index < 0 || index >= len(v.conns) {
		return fmt.Errorf("remove: index %d out of range [0, %d)", index, len(v.conns))
	}
	c := v.conns[index]
	if err := unix.Close(int(v.pfds[index+1].Fd)); err != nil {
		log.Warnf("[REGISTRY] closing descriptor of client %d: %v", index, err)
	}
	if err := c.Conn.Close(); err != nil {
		log.Warnf("[REGISTRY] closing client %d: %v", index, err)
	}

	last := len(v.conns) - 1
	v.conns[index] = v.conns[last]
	v.conns = v.conns[:last]
	v.pfds[index+1] = v.pfds[last+1]
	v.pfds = v.pfds[:last+1]
	return nil
}

// IndexOf resolves a socket to its record index, or -1.
func (v *Vector) IndexOf(conn net.Conn) int {
	for i, c := range v.conns {
		if c.Conn == conn {
			return i
		}
	}
	return -1
}

// Get returns the record at index, or nil if out of bounds.
func (v *Vector) Get(index int) *Connection {
	if index < 0 || index >= len(v.conns) {
		return nil
	}
	return v.conns[index]
}

// Size is the number of connected clients.
func (v *Vector) Size() int {
	return len(v.conns)
}

// Snapshot copies the record sequence so the caller can walk it after
// releasing the registry lock. Snapshot[i] matches descriptor slot i+1 of a
// PollFds copy taken at the same time.
func (v *Vector) Snapshot() []*Connection {
	out := make([]*Connection, len(v.conns))
	copy(out, v.conns)
	return out
}

// PollFds copies the descriptor array, leaving extra trailing slots for the
// caller to append to.
func (v *Vector) PollFds(extra int) []unix.PollFd {
	out := make([]unix.PollFd, len(v.pfds), len(v.pfds)+extra)
	copy(out, v.pfds)
	return out
}

// MaybeShrink halves capacity once occupancy drops below half, but never
// below the initial capacity.
func (v *Vector) MaybeShrink() {
	if cap(v.conns) <= v.initial || len(v.conns) >= cap(v.conns)/2 {
		return
	}
	v.resize(cap(v.conns) / 2)
}

// Close tears down every remaining client socket and descriptor. The
// listener slot is left to its owner.
func (v *Vector) Close() {
	for i, c := range v.conns {
		_ = unix.Close(int(v.pfds[i+1].Fd))
		_ = c.Conn.Close()
	}
	v.conns = v.conns[:0]
	v.pfds = v.pfds[:1]
}

func (v *Vector) resize(newCap int) {
	if newCap < v.initial {
		newCap = v.initial
	}
	if newCap < len(v.conns) {
		return
	}
	conns := make([]*Connection, len(v.conns), newCap)
	copy(conns, v.conns)
	v.conns = conns
	pfds := make([]unix.PollFd, len(v.pfds), newCap+1)
	copy(pfds, v.pfds)
	v.pfds = pfds
}
