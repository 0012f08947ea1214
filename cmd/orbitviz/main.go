package main

import (
	"os"

	"github.com/art-injener/orbitviz-go/cmd/orbitviz/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
