package main

import (
	"os"

	"github.com/pagecraft/pagecraft/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
