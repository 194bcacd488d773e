package station

import (
	"fmt"
	"io"
	"sync"

	snowcast "github.com/ringtack/snowcast"
	"github.com/ringtack/snowcast/pkg/client"
)

// Set is the fixed collection of stations created at startup. It owns the
// set-level lock; each station's subscriber list carries its own. Lock
// order is set lock first, then station-list locks in ascending index
// order.
type Set struct {
	mu       sync.Mutex
	stations []*Station
}

// NewSet creates one station per song file. On any failure the stations
// already running are stopped again.
func NewSet(songs []string) (*Set, error) {
	set := &Set{stations: make([]*Station, 0, len(songs))}
	for i, song := range songs {
		s, err := NewStation(i, song)
		if err != nil {
			set.Close()
			return nil, err
		}
		set.stations = append(set.stations, s)
	}
	return set, nil
}

// Len is the station count.
func (set *Set) Len() int {
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.stations)
}

// SongName returns the song announced by station i.
func (set *Set) SongName(i int) (string, error) {
	set.mu.Lock()
	defer set.mu.Unlock()
	if i < 0 || i >= len(set.stations) {
		return "", snowcast.ErrInvalidStation
	}
	return set.stations[i].SongName(), nil
}

// Swap retunes a client. Out-of-range targets fail with ErrInvalidStation
// and change nothing; retuning to the current station is a no-op. When the
// client moves between two stations, both subscriber-list locks are taken
// in ascending index order. The caller holds the client-registry lock so
// the record cannot be destroyed concurrently.
func (set *Set) Swap(c *client.Connection, newStation int) error {
	set.mu.Lock()
	defer set.mu.Unlock()
	if newStation < 0 || newStation >= len(set.stations) {
		return snowcast.ErrInvalidStation
	}
	old := c.Station
	switch {
	case old == newStation:
		return nil
	case old == client.NoStation:
		dst := set.stations[newStation]
		dst.mu.Lock()
		dst.attachLocked(c)
		c.Station = newStation
		dst.mu.Unlock()
	default:
		src, dst := set.stations[old], set.stations[newStation]
		lo, hi := src, dst
		if old > newStation {
			lo, hi = dst, src
		}
		lo.mu.Lock()
		hi.mu.Lock()
		src.detachLocked(c)
		dst.attachLocked(c)
		c.Station = newStation
		hi.mu.Unlock()
		lo.mu.Unlock()
	}
	return nil
}

// Detach unlinks a client from its current station, if any. The caller
// holds the client-registry lock.
func (set *Set) Detach(c *client.Connection) {
	set.mu.Lock()
	defer set.mu.Unlock()
	if c.Station == client.NoStation || c.Station >= len(set.stations) {
		c.Station = client.NoStation
		return
	}
	s := set.stations[c.Station]
	s.mu.Lock()
	s.detachLocked(c)
	s.mu.Unlock()
	c.Station = client.NoStation
}

// Print writes one snapshot line per station:
// <index>,<song>[,<ip>:<port>]*
func (set *Set) Print(w io.Writer) error {
	set.mu.Lock()
	defer set.mu.Unlock()
	for _, s := range set.stations {
		s.mu.Lock()
		_, err := fmt.Fprintf(w, "%d,%s", s.number, s.songName)
		for _, c := range s.subs {
			if err != nil {
				break
			}
			_, err = fmt.Fprintf(w, ",%s", c.UDPAddr)
		}
		if err == nil {
			_, err = fmt.Fprintln(w)
		}
		s.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// Subscribers returns a snapshot of station i's subscriber records, or nil
// for an out-of-range index.
func (set *Set) Subscribers(i int) []*client.Connection {
	set.mu.Lock()
	defer set.mu.Unlock()
	if i < 0 || i >= len(set.stations) {
		return nil
	}
	s := set.stations[i]
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*client.Connection, len(s.subs))
	copy(out, s.subs)
	return out
}

// Close cancels every pacer and waits for each to release its resources.
func (set *Set) Close() {
	set.mu.Lock()
	defer set.mu.Unlock()
	for _, s := range set.stations {
		s.Stop()
	}
}
