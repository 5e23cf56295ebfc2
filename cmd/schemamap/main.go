package main

import (
	"os"

	"github.com/solatis/schemamap/cmd/schemamap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
