package main

import (
	"os"

	"github.com/me/uthread/internal/cli"
)

func main() {
	os.Exit(cli.Report(os.Stderr, cli.NewRootCmd().Execute()))
}
