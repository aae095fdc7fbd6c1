package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/bdougie/handscan/internal/cli"
)

var version = "0.1.0"

func main() {
	root := cli.NewRootCmd()

	// Ctrl+C cancels the command context, which releases the camera and the connection
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
