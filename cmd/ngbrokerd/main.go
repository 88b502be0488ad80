// Command ngbrokerd runs a standalone NextGraph broker node: it loads
// a config file from disk and hands it to server.New.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	server "nextgraph.dev/broker"
	"nextgraph.dev/broker/config"
)

func main() {
	cfgFile := flag.String("f", "ngbroker.conf", "Path to the broker config file")
	flag.Parse()

	raw, err := os.ReadFile(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ngbrokerd: failed to read config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ngbrokerd: invalid config: %v\n", err)
		os.Exit(1)
	}

	s, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ngbrokerd: failed to start: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	s.Shutdown()
}
