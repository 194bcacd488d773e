// Package station implements the radio stations: each one loops a single
// song file and broadcasts it in fixed-size chunks to its subscribers at a
// fixed wall-clock rate.
package station

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dhowden/tag"
	log "github.com/sirupsen/logrus"

	"github.com/ringtack/snowcast/pkg/client"
)

const (
	// ChunkSize is the fixed UDP payload size.
	ChunkSize = 1024
	// ChunksPerSecond spreads the 16 KiB/s budget over the second.
	ChunksPerSecond = 16
	// ChunkInterval is the pacing cadence, 62 500 µs.
	ChunkInterval = time.Second / ChunksPerSecond
)

// A Station owns one looping song file and a subscriber list. The pacer
// goroutine is the sole owner of the file cursor, the chunk buffer, and the
// sending sockets; subscriber mutations are serialized against the
// broadcast iteration by mu.
type Station struct {
	number   int
	songPath string
	songName string

	file *os.File
	buf  []byte

	mu   sync.Mutex
	subs []*client.Connection

	udp4 *net.UDPConn
	udp6 *net.UDPConn

	quit chan struct{}
	done chan struct{}
	stop sync.Once
}

// NewStation opens the song file and the sending sockets, then starts the
// pacer. The song name reported on the wire is the file's base name.
func NewStation(number int, songPath string) (*Station, error) {
	file, err := os.Open(songPath)
	if err != nil {
		return nil, fmt.Errorf("station %d: %w", number, err)
	}
	s := &Station{
		number:   number,
		songPath: songPath,
		songName: filepath.Base(songPath),
		file:     file,
		buf:      make([]byte, ChunkSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.udp4, err = net.ListenUDP("udp4", nil)
	if err != nil {
		log.Warnf("[STATION %d] no IPv4 sending socket: %v", number, err)
	}
	s.udp6, err = net.ListenUDP("udp6", nil)
	if err != nil {
		log.Warnf("[STATION %d] no IPv6 sending socket: %v", number, err)
	}
	if s.udp4 == nil && s.udp6 == nil {
		file.Close()
		return nil, fmt.Errorf("station %d: no sending sockets", number)
	}

	s.logSongTags()
	go s.pace()
	return s, nil
}

// Number is the station's index.
func (s *Station) Number() int { return s.number }

// SongName is the name announced to clients.
func (s *Station) SongName() string { return s.songName }

// Stop cancels the pacer and waits for it to release the song file and the
// sending sockets. Idempotent.
func (s *Station) Stop() {
	s.stop.Do(func() { close(s.quit) })
	<-s.done
}

// logSongTags surfaces the song's embedded metadata, if any, then rewinds
// the cursor for the pacer.
func (s *Station) logSongTags() {
	m, err := tag.ReadFrom(s.file)
	if _, serr := s.file.Seek(0, io.SeekStart); serr != nil {
		log.Warnf("[STATION %d] rewinding %s: %v", s.number, s.songPath, serr)
	}
	if err != nil {
		log.Infof("[STATION %d] serving %s", s.number, s.songName)
		return
	}
	log.Infof("[STATION %d] serving %s (%s - %s)", s.number, s.songName, m.Artist(), m.Title())
}

// pace emits one chunk per ChunkInterval, compensating the sleep for the
// time spent reading and sending.
func (s *Station) pace() {
	defer func() {
		if err := s.file.Close(); err != nil {
			log.Warnf("[STATION %d] closing %s: %v", s.number, s.songPath, err)
		}
		if s.udp4 != nil {
			s.udp4.Close()
		}
		if s.udp6 != nil {
			s.udp6.Close()
		}
		close(s.done)
	}()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		start := time.Now()
		if err := s.readChunk(); err != nil {
			log.Errorf("[STATION %d] %v", s.number, err)
			return
		}
		s.broadcast()

		wait := ChunkInterval - time.Since(start)
		if wait <= 0 {
			continue
		}
		select {
		case <-s.quit:
			return
		case <-time.After(wait):
		}
	}
}

// readChunk refills the chunk buffer, seeking back to the start of the song
// whenever end-of-file lands mid-chunk so playback loops seamlessly. A file
// that yields no bytes at all is fatal to the pacer.
func (s *Station) readChunk() error {
	total := 0
	zeroReads := 0
	for total < ChunkSize {
		n, err := s.file.Read(s.buf[total:])
		total += n
		if err != nil && err != io.EOF {
			return fmt.Errorf("reading %s: %w", s.songPath, err)
		}
		if n > 0 {
			zeroReads = 0
			continue
		}
		zeroReads++
		if zeroReads > 1 {
			return fmt.Errorf("song %s yields no data", s.songPath)
		}
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewinding %s: %w", s.songPath, err)
		}
	}
	return nil
}

// broadcast sends the chunk to every subscriber. A send failure is logged
// and the subscriber kept; it only leaves the station when its TCP side
// fails.
func (s *Station) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.subs {
		if err := s.sendChunk(c.UDPAddr); err != nil {
			log.Errorf("[STATION %d] sending to %v: %v", s.number, c.UDPAddr, err)
		}
	}
}

// sendChunk picks the sending socket by the subscriber's address family and
// retries partial sends until the whole chunk is out.
func (s *Station) sendChunk(addr *net.UDPAddr) error {
	sock := s.udp4
	if addr.IP.To4() == nil {
		sock = s.udp6
	}
	if sock == nil {
		return fmt.Errorf("no sending socket for address family of %v", addr)
	}
	sent := 0
	for sent < len(s.buf) {
		n, err := sock.WriteToUDP(s.buf[sent:], addr)
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

// attach and detach assume the caller holds mu via the Set's swap paths.
func (s *Station) attachLocked(c *client.Connection) {
	s.subs = append(s.subs, c)
}

func (s *Station) detachLocked(c *client.Connection) {
	for i, sub := range s.subs {
		if sub == c {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}
