package main

import (
	"os"

	"github.com/filedepot/filedepot/cmd/filedepotctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("Error: %v", err)
		os.Exit(1)
	}
}
