package main

import (
	"os"

	"github.com/malt3/tarstream/internal/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
