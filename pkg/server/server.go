// Package server ties the Snowcast core together: the client registry and
// its poller, the worker pool executing control-plane jobs, the station
// set, and the lifecycle controller that tears everything down in order.
package server

import (
	"fmt"
	"io"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ringtack/snowcast/pkg/client"
	"github.com/ringtack/snowcast/pkg/config"
	"github.com/ringtack/snowcast/pkg/pool"
	"github.com/ringtack/snowcast/pkg/station"
)

// Server is the running Snowcast core. Create one with New; it serves until
// Stop.
type Server struct {
	stations *station.Set
	pool     *pool.WorkerPool

	ln   *net.TCPListener
	lnFd int32 // dup'd listener descriptor, slot 0 of the poll array

	// mu guards the registry and the in-flight-jobs counter. The poller
	// holds it across the readiness wait so the descriptor snapshot cannot
	// be mutated concurrently.
	mu          sync.Mutex
	clients     *client.Vector
	pending     int
	pendingZero *sync.Cond

	stopMu  sync.Mutex
	stopped bool

	// wake pipe: one byte written at shutdown breaks the poller out of its
	// indefinite poll.
	wakeR, wakeW int

	pollerDone chan struct{}
}

// New starts the full core: stations first, then the worker pool, then the
// registry seeded with the listener, then the poller. addr is a TCP listen
// address such as ":8000".
func New(cfg *config.Config, addr string, songs []string) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("no song files given")
	}

	stations, err := station.NewSet(songs)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		stations.Close()
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	tcpLn := ln.(*net.TCPListener)

	lnFd, err := client.DupFd(tcpLn)
	if err != nil {
		ln.Close()
		stations.Close()
		return nil, err
	}

	var pipeFds [2]int
	if err := unix.Pipe(pipeFds[:]); err != nil {
		unix.Close(int(lnFd))
		ln.Close()
		stations.Close()
		return nil, fmt.Errorf("wake pipe: %w", err)
	}

	s := &Server{
		stations:   stations,
		pool:       pool.NewWorkerPool(cfg.Workers),
		ln:         tcpLn,
		lnFd:       lnFd,
		clients:    client.NewVector(cfg.MaxClients, lnFd),
		wakeR:      pipeFds[0],
		wakeW:      pipeFds[1],
		pollerDone: make(chan struct{}),
	}
	s.pendingZero = sync.NewCond(&s.mu)

	go s.poll()
	log.Infof("[SERVER] listening on %s with %d station(s)", ln.Addr(), stations.Len())
	return s, nil
}

// Addr is the address the listener is bound to.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Stopped reports whether Stop has begun.
func (s *Server) Stopped() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stopped
}

// Snapshot writes the station listing, one line per station.
func (s *Server) Snapshot(w io.Writer) error {
	return s.stations.Print(w)
}

// Stop tears the core down: set stopped, break the blocked accept and the
// blocked poll, drain the worker pool, join the poller, cancel the pacers,
// close the remaining client sockets, and finally destroy the pool.
// Idempotent.
func (s *Server) Stop() {
	s.stopMu.Lock()
	if s.stopped {
		s.stopMu.Unlock()
		return
	}
	s.stopped = true
	s.stopMu.Unlock()

	s.ln.Close()
	s.wakePoller()

	s.pool.WaitIdle()

	s.mu.Lock()
	s.pendingZero.Broadcast()
	s.mu.Unlock()
	<-s.pollerDone

	s.stations.Close()

	s.mu.Lock()
	s.clients.Close()
	s.mu.Unlock()

	unix.Close(s.wakeR)
	unix.Close(s.wakeW)
	unix.Close(int(s.lnFd))

	s.pool.Shutdown()
	log.Infof("[SERVER] stopped")
}

func (s *Server) wakePoller() {
	if _, err := unix.Write(s.wakeW, []byte{0}); err != nil {
		log.Errorf("[SERVER] waking poller: %v", err)
	}
}

// addPending records control-plane jobs handed out by the poller.
func (s *Server) addPending() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
}

// donePending is called on every exit path of every control-plane job.
func (s *Server) donePending() {
	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		s.pendingZero.Broadcast()
	}
	s.mu.Unlock()
}
