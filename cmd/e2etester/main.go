package main

import (
	"os"

	"github.com/psantana5/e2e-tester/cmd/e2etester/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
