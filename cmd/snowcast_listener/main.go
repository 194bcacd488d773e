// The snowcast listener: receives a station's UDP stream and writes the
// raw song bytes to standard output or a file. Pipe it into an audio
// player, e.g. `snowcast_listener 8080 | mpg123 -`.
package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/ringtack/snowcast/pkg/station"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "Usage: ./snowcast_listener <LISTENER_PORT> [<OUTPUT_FILE>]")
		os.Exit(1)
	}

	pc, err := net.ListenPacket("udp", ":"+os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not listen on port %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	defer pc.Close()

	var out io.Writer = os.Stdout
	if len(os.Args) == 3 {
		f, err := os.Create(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not open %s: %v\n", os.Args[2], err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	buf := make([]byte, station.ChunkSize)
	for {
		n, _, err := pc.ReadFrom(buf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Receive error: %v\n", err)
			os.Exit(1)
		}
		if _, err := out.Write(buf[:n]); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(1)
		}
	}
}
