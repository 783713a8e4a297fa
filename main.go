package main

import (
	"os"

	"github.com/phyloflow/phyloflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
