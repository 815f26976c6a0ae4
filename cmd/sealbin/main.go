package main

import (
	"os"

	"sealbin/cmd/sealbin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
