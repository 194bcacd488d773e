package server

import (
	"bufio"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ProcessCommands runs the operator REPL until 'q' or end of input, which
// are equivalent. It does not stop the server itself; the caller does that
// once this returns.
//
//	q          request shutdown
//	p          print the station snapshot to standard output
//	p <path>   write the snapshot to <path>, truncating it
func (s *Server) ProcessCommands(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "q":
			return
		case "p":
			if len(fields) == 1 {
				if err := s.Snapshot(os.Stdout); err != nil {
					log.Errorf("[REPL] snapshot: %v", err)
				}
				continue
			}
			s.snapshotToFile(fields[1])
		default:
			log.Warnf("[REPL] unknown command %q", fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("[REPL] reading input: %v", err)
	}
}

func (s *Server) snapshotToFile(path string) {
	f, err := os.Create(path)
	if err != nil {
		log.Errorf("[REPL] opening %s: %v", path, err)
		return
	}
	defer f.Close()
	if err := s.Snapshot(f); err != nil {
		log.Errorf("[REPL] snapshot to %s: %v", path, err)
	}
}
