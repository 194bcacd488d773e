package client

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair dials the test listener and returns both halves.
func connPair(t *testing.T, ln net.Listener) (net.Conn, net.Conn) {
	t.Helper()
	dialed, err := net.Dial("tcp", ln.Addr().String())
	require.Nil(t, err)
	accepted, err := ln.Accept()
	require.Nil(t, err)
	t.Cleanup(func() {
		dialed.Close()
		accepted.Close()
	})
	return dialed, accepted
}

func testVector(t *testing.T, initial int) (*Vector, net.Listener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { ln.Close() })
	fd, err := DupFd(ln.(*net.TCPListener))
	require.Nil(t, err)
	return NewVector(initial, fd), ln
}

func TestNewConnectionDeliveryAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	defer ln.Close()
	dialed, accepted := connPair(t, ln)
	_ = dialed

	c, err := NewConnection(accepted, 8080)
	require.Nil(t, err)
	assert.Equal(t, NoStation, c.Station)
	assert.Equal(t, 8080, c.UDPAddr.Port)
	assert.Equal(t, "127.0.0.1", c.UDPAddr.IP.String())
}

func TestVectorAddRemoveKeepsSlotsAligned(t *testing.T) {
	v, ln := testVector(t, 2)

	var conns []*Connection
	for i := 0; i < 3; i++ {
		_, accepted := connPair(t, ln)
		c, err := NewConnection(accepted, uint16(9000+i))
		require.Nil(t, err)
		idx, err := v.Add(c)
		require.Nil(t, err)
		assert.Equal(t, i, idx)
		conns = append(conns, c)
	}
	require.Equal(t, 3, v.Size())
	require.Len(t, v.pfds, 4)

	// Remember which descriptor tracks the last record, then remove the
	// first: swap-with-last must move both sequences together.
	lastFd := v.pfds[3].Fd
	require.Nil(t, v.Remove(0))
	assert.Equal(t, 2, v.Size())
	assert.Len(t, v.pfds, 3)
	assert.Same(t, conns[2], v.conns[0])
	assert.Equal(t, lastFd, v.pfds[1].Fd)
	assert.Same(t, conns[1], v.conns[1])

	assert.Equal(t, -1, v.IndexOf(conns[0].Conn))
	assert.Equal(t, 0, v.IndexOf(conns[2].Conn))
	assert.Equal(t, 1, v.IndexOf(conns[1].Conn))
}

func TestVectorRemoveClosesSocket(t *testing.T) {
	v, ln := testVector(t, 2)
	dialed, accepted := connPair(t, ln)
	c, err := NewConnection(accepted, 9000)
	require.Nil(t, err)
	_, err = v.Add(c)
	require.Nil(t, err)

	require.Nil(t, v.Remove(0))
	// The accepted side is closed, so the dialer sees EOF.
	buf := make([]byte, 1)
	_, err = dialed.Read(buf)
	assert.NotNil(t, err)
}

func TestVectorRemoveOutOfRange(t *testing.T) {
	v, _ := testVector(t, 2)
	assert.NotNil(t, v.Remove(0))
	assert.NotNil(t, v.Remove(-1))
}

func TestVectorGetBounds(t *testing.T) {
	v, ln := testVector(t, 2)
	_, accepted := connPair(t, ln)
	c, err := NewConnection(accepted, 9000)
	require.Nil(t, err)
	_, err = v.Add(c)
	require.Nil(t, err)

	assert.Same(t, c, v.Get(0))
	assert.Nil(t, v.Get(1))
	assert.Nil(t, v.Get(-1))
}

func TestVectorGrowsAndShrinks(t *testing.T) {
	v, ln := testVector(t, 2)

	for i := 0; i < 5; i++ {
		_, accepted := connPair(t, ln)
		c, err := NewConnection(accepted, uint16(9000+i))
		require.Nil(t, err)
		_, err = v.Add(c)
		require.Nil(t, err)
	}
	grown := cap(v.conns)
	assert.GreaterOrEqual(t, grown, 5)

	for v.Size() > 1 {
		require.Nil(t, v.Remove(0))
	}
	v.MaybeShrink()
	assert.Less(t, cap(v.conns), grown)
	// Never below the initial capacity.
	assert.GreaterOrEqual(t, cap(v.conns), 2)
	// The surviving record still lines up with slot 1.
	assert.Equal(t, 1, v.Size())
	assert.Len(t, v.pfds, 2)
}

func TestVectorSnapshotIsStable(t *testing.T) {
	v, ln := testVector(t, 2)
	_, accepted := connPair(t, ln)
	c, err := NewConnection(accepted, 9000)
	require.Nil(t, err)
	_, err = v.Add(c)
	require.Nil(t, err)

	snap := v.Snapshot()
	pfds := v.PollFds(1)
	require.Nil(t, v.Remove(0))

	// Copies are unaffected by the removal.
	assert.Len(t, snap, 1)
	assert.Same(t, c, snap[0])
	assert.Len(t, pfds, 2)
	assert.Equal(t, 1, cap(pfds)-len(pfds))
}
