package main

import (
	"os"

	"github.com/adalundhe/anvil/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
