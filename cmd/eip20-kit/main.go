package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chainsafe/eip20-kit/pkg/app/daemon"
	"github.com/chainsafe/eip20-kit/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemon.NewServer(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "eip20-kit exited with error: %v\n", err)
		os.Exit(1)
	}
}
