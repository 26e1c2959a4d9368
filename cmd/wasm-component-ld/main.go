package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/wippyai/wasm-component-ld/argv"
	"github.com/wippyai/wasm-component-ld/diag"
	"github.com/wippyai/wasm-component-ld/driver"
	"github.com/wippyai/wasm-component-ld/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		diag.Print(err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(ctx context.Context, args []string) error {
	plan, err := argv.Classify(args)
	if err != nil {
		return err
	}
	if plan.Verbose {
		driver.EnableVerboseLogging()
	}
	return driver.Run(ctx, driver.Config{Plan: plan})
}
