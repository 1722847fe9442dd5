package main

import (
	"os"

	"github.com/astriaorg/astria-sequencer/cmd/astria-sequencerd/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
