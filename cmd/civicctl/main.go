package main

import (
	"os"

	"civic/cmd/civicctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
