// The snowcast control client: performs the Hello/Welcome handshake, then
// turns typed station numbers into SetStation commands and prints whatever
// the server announces.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	snowcast "github.com/ringtack/snowcast"
	"github.com/ringtack/snowcast/pkg/protocol"
)

type control struct {
	conn net.Conn

	mu      sync.Mutex
	stopped bool
}

func (c *control) stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.conn.Close()
}

func (c *control) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr,
			"Usage: ./snowcast_control <SERVER_NAME> <SERVER_PORT> <LISTENER_PORT>")
		os.Exit(1)
	}
	hostname, port := os.Args[1], os.Args[2]
	listenerPort, err := strconv.ParseUint(os.Args[3], 10, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid listener port %s.\n", os.Args[3])
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(hostname, port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not connect to server %s:%s.\n", hostname, port)
		os.Exit(1)
	}
	c := &control{conn: conn}

	fmt.Println("Type in a number to set the station on which we're listening to that number.")
	fmt.Println("Type in 'q', Ctrl-D, or Ctrl-C to quit.")

	if err := protocol.SendCommand(conn, protocol.Hello{UDPPort: uint16(listenerPort)}); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to send message to server. Shutting down...")
		c.stop()
		os.Exit(1)
	}
	reply, err := recvReply(c)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to receive reply from server. Shutting down...")
		c.stop()
		os.Exit(1)
	}
	welcome, ok := reply.(protocol.Welcome)
	if !ok {
		fmt.Fprintf(os.Stderr, "Server %s:%s sent an invalid reply. Shutting down...\n", hostname, port)
		c.stop()
		os.Exit(1)
	}
	fmt.Printf("Welcome to Snowcast! The server has %d station(s).\n", welcome.NumStations)

	go processReplies(c)
	processInput(c)
	c.stop()
}

// processInput turns typed station numbers into SetStation commands until
// 'q' or end of input.
func processInput(c *control) {
	fmt.Print("> ")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line[0] == 'q' {
			return
		}
		stn, err := strconv.ParseUint(line, 10, 16)
		if err != nil {
			fmt.Print("> ")
			continue
		}
		if err := protocol.SendCommand(c.conn, protocol.SetStation{Station: uint16(stn)}); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to send message to server.")
			return
		}
		fmt.Println("Waiting for an announce...")
	}
	fmt.Fprintln(os.Stderr, "Received EOF/error. Shutting down...")
}

// processReplies prints announces as they arrive; an invalid-command reply
// or a lost connection ends the session.
func processReplies(c *control) {
	for {
		reply, err := recvReply(c)
		if err != nil {
			if !c.isStopped() {
				fmt.Fprintln(os.Stderr, "Failed to receive reply from server. Shutting down...")
				c.stop()
				os.Exit(1)
			}
			return
		}
		switch r := reply.(type) {
		case protocol.Announce:
			fmt.Printf("New song announced: %s\n", r.SongName)
			fmt.Print("> ")
		case protocol.InvalidCommand:
			fmt.Fprintf(os.Stderr, "INVALID_COMMAND_REPLY: %s\n", r.Reason)
			c.stop()
			os.Exit(1)
		default:
			fmt.Fprintln(os.Stderr, "Invalid reply type. Shutting down...")
			c.stop()
			os.Exit(1)
		}
	}
}

// recvReply waits indefinitely, retrying past the codec's per-call read
// deadline; replies arrive whenever the server has something to say.
func recvReply(c *control) (protocol.Reply, error) {
	for {
		reply, err := protocol.RecvReply(c.conn)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, snowcast.ErrTimeout) && !c.isStopped() {
			continue
		}
		return nil, err
	}
}
