package server

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// poll is the single readiness loop. It is the sole author of control-plane
// jobs: before each readiness wait it holds the registry lock until every
// previously dispatched job has finished, so the descriptor array it hands
// to poll(2) is never mutated concurrently. The array is the registry's
// slots (listener in 0, client i in i+1) plus one trailing slot for the
// wake pipe.
func (s *Server) poll() {
	defer close(s.pollerDone)
	for {
		s.mu.Lock()
		for s.pending > 0 && !s.Stopped() {
			s.pendingZero.Wait()
		}
		if s.Stopped() {
			s.mu.Unlock()
			return
		}
		s.clients.MaybeShrink()

		pfds := s.clients.PollFds(1)
		pfds = append(pfds, unix.PollFd{Fd: int32(s.wakeR), Events: unix.POLLIN})
		conns := s.clients.Snapshot()

		n, err := unix.Poll(pfds, -1)
		s.mu.Unlock()

		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Errorf("[POLLER] poll: %v", err)
			return
		}
		if n <= 0 {
			continue
		}

		// Shutdown wake: recheck stopped at the top without dispatching.
		if pfds[len(pfds)-1].Revents != 0 {
			s.drainWake()
			continue
		}

		// One inline accept per readiness round.
		if pfds[0].Revents != 0 {
			s.addPending()
			s.acceptAndHandshake()
		}

		for i, c := range conns {
			if pfds[i+1].Revents == 0 {
				continue
			}
			c := c
			s.addPending()
			if err := s.pool.AddJob(
				func() { s.handleRequest(c) },
				s.donePending,
			); err != nil {
				s.donePending()
			}
		}
	}
}

func (s *Server) drainWake() {
	var buf [8]byte
	if _, err := unix.Read(s.wakeR, buf[:]); err != nil {
		log.Errorf("[POLLER] draining wake pipe: %v", err)
	}
}
