// Package main is the lineagekit command.
package main

import (
	"os"

	"github.com/souptikmandal/lineagekit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
