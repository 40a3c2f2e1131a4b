// Package main is the entry point for the lake CLI binary.
package main

import (
	"os"

	cli "lakehouse/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
