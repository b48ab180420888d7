package main

import (
	"os"

	"github.com/opencanvas/ragengine/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// cobra already printed the error; just signal failure.
		os.Exit(1)
	}
}
