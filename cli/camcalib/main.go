// Package main is the camcalib command itself.
package main

import (
	"context"
	"os"
	"os/signal"

	"go.viam.com/camcalib/cli"
	"go.viam.com/camcalib/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args)
	stop()
	if err != nil {
		logging.NewLogger("camcalib").Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
