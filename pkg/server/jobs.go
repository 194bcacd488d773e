package server

import (
	"errors"
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"

	snowcast "github.com/ringtack/snowcast"
	"github.com/ringtack/snowcast/pkg/client"
	"github.com/ringtack/snowcast/pkg/protocol"
)

// acceptAndHandshake accepts one connection and performs the Hello/Welcome
// exchange. It runs inline on the poller, which has already counted it as a
// pending job. Failures before the registry add close the socket silently;
// failures at or after it remove the client again.
func (s *Server) acceptAndHandshake() {
	defer s.donePending()

	conn, err := s.ln.Accept()
	if err != nil {
		if !s.Stopped() {
			log.Errorf("[SERVER] accept: %v", err)
		}
		return
	}

	cmd, err := protocol.RecvCommand(conn)
	if err != nil {
		conn.Close()
		return
	}
	hello, ok := cmd.(protocol.Hello)
	if !ok {
		conn.Close()
		return
	}

	c, err := client.NewConnection(conn, hello.UDPPort)
	if err != nil {
		log.Errorf("[SERVER] handshake with %v: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	s.mu.Lock()
	_, err = s.clients.Add(c)
	s.mu.Unlock()
	if err != nil {
		log.Errorf("[SERVER] registering %v: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	welcome := protocol.Welcome{NumStations: uint16(s.stations.Len())}
	if err := protocol.SendReply(conn, welcome); err != nil {
		log.Errorf("[SERVER] welcoming %v: %v", conn.RemoteAddr(), err)
		s.removeClientEverywhere(conn)
		return
	}
	log.Infof("[SERVER] client %v connected, streaming to %v", conn.RemoteAddr(), c.UDPAddr)
}

// handleRequest reads and serves one command from a connected client. Any
// receive failure drops the client; a clean close does so quietly.
func (s *Server) handleRequest(c *client.Connection) {
	defer s.donePending()

	cmd, err := protocol.RecvCommand(c.Conn)
	if err != nil {
		switch {
		case errors.Is(err, snowcast.ErrPeerClosed):
		case errors.Is(err, snowcast.ErrProtocol):
			_ = protocol.SendReply(c.Conn, protocol.InvalidCommand{
				Reason: "Malformed or unknown command.",
			})
		case errors.Is(err, snowcast.ErrTimeout):
			log.Debugf("[SERVER] %v timed out mid-command", c.Conn.RemoteAddr())
		default:
			if !s.Stopped() {
				log.Errorf("[SERVER] receiving from %v: %v", c.Conn.RemoteAddr(), err)
			}
		}
		s.removeClientEverywhere(c.Conn)
		return
	}

	switch m := cmd.(type) {
	case protocol.SetStation:
		s.setStation(c, int(m.Station))
	default:
		_ = protocol.SendReply(c.Conn, protocol.InvalidCommand{
			Reason: "Unexpected Hello; client is already connected.",
		})
		s.removeClientEverywhere(c.Conn)
	}
}

// setStation retunes a client, announcing the new station's song. A
// SetStation to the current station succeeds silently.
func (s *Server) setStation(c *client.Connection, n int) {
	s.mu.Lock()
	if s.clients.IndexOf(c.Conn) < 0 {
		s.mu.Unlock()
		return
	}
	old := c.Station
	err := s.stations.Swap(c, n)
	s.mu.Unlock()

	if err != nil {
		reason := fmt.Sprintf("Requested station %d, but server only has stations [0, %d).",
			n, s.stations.Len())
		_ = protocol.SendReply(c.Conn, protocol.InvalidCommand{Reason: reason})
		s.removeClientEverywhere(c.Conn)
		return
	}
	if old == n {
		return
	}

	song, err := s.stations.SongName(n)
	if err != nil {
		log.Errorf("[SERVER] station %d vanished: %v", n, err)
		s.removeClientEverywhere(c.Conn)
		return
	}
	announce := protocol.Announce{SongName: fmt.Sprintf("%q [switched to Station %d]", song, n)}
	if err := protocol.SendReply(c.Conn, announce); err != nil {
		s.removeClientEverywhere(c.Conn)
		return
	}
	log.Infof("[SERVER] %v tuned to station %d", c.Conn.RemoteAddr(), n)
}

// removeClientEverywhere unlinks a client from its station's subscriber
// list and from the registry, closing the socket. Safe to call for sockets
// already gone.
func (s *Server) removeClientEverywhere(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.clients.IndexOf(conn)
	if index < 0 {
		return
	}
	c := s.clients.Get(index)
	s.stations.Detach(c)
	if err := s.clients.Remove(index); err != nil {
		log.Errorf("[SERVER] removing client %d: %v", index, err)
		return
	}
	log.Infof("[SERVER] client %v disconnected", conn.RemoteAddr())
}
