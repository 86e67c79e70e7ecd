// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Command scopelink is the operator CLI for a microscope automation
// server: stage queries and moves, acquisitions with live progress,
// calibration, scan history, and instrument shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microscint/scopelink/cmd/scopelink/cli"
	"github.com/microscint/scopelink/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{ctx: ctx}
	if err := root(app).Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func root(app *app) *cli.Command {
	return &cli.Command{
		Name:    "scopelink",
		Summary: "Control client for a microscope automation server.",
		Subcommands: []*cli.Command{
			statusCommand(app),
			positionCommand(app),
			moveCommand(app),
			acquireCommand(app),
			calibrateCommand(app),
			stopCommand(app),
			skipFocusCommand(app),
			historyCommand(app),
			journalCommand(app),
			shutdownCommand(app),
			versionCommand(),
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version and build information.",
		Run: func(args []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}
