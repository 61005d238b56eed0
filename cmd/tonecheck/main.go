package main

import (
	"os"

	"github.com/dshills/tonecheck/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
