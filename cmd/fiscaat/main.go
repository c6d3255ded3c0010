package main

import (
	"os"

	"github.com/fiscaat/fiscaat/internal/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
