package main

import (
	"os"

	"github.com/chidi150c/tradegate/cmd/tradegate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
