// The snowcast server: streams each song file as its own station and
// serves the control protocol until the operator quits.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/ringtack/snowcast/pkg/config"
	"github.com/ringtack/snowcast/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "optional server configuration file")
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr,
			"Usage: ./snowcast_server <PORT> <FILE1> [<FILE2> [<FILE3> [...]]]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.LogLevel)

	srv, err := server.New(cfg, ":"+args[0], args[1:])
	if err != nil {
		log.Errorf("startup: %v", err)
		os.Exit(1)
	}

	srv.ProcessCommands(os.Stdin)
	srv.Stop()
	fmt.Println("Goodbye!")
}
