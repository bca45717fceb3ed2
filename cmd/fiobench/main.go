package main

import (
	"os"

	"github.com/psantana5/fiobench/cmd/fiobench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
