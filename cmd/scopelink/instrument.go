// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/microscint/scopelink/cmd/scopelink/cli"
	"github.com/microscint/scopelink/lib/config"
	"github.com/microscint/scopelink/scope"
)

func calibrateCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "calibrate",
		Summary: "Run the white-balance calibration routine.",
		Usage:   "scopelink calibrate [flags]",
		Flags:   func() *pflag.FlagSet { return a.flags("calibrate") },
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				fmt.Fprintln(os.Stderr, "calibrating white balance (this can take minutes)...")
				if err := client.CalibrateWhiteBalance(a.ctx); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "calibration complete")
				return nil
			})
		},
	}
}

func stopCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "stop",
		Summary: "Abort the running scan.",
		Usage:   "scopelink stop [flags]",
		Flags:   func() *pflag.FlagSet { return a.flags("stop") },
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				return client.StopScan(a.ctx)
			})
		},
	}
}

func skipFocusCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "skip-focus",
		Summary: "Answer a pending manual focus request with a skip.",
		Usage:   "scopelink skip-focus [flags]",
		Description: "Answer a pending manual focus request with an explicit skip. Useful\n" +
			"when a scan was started by another process and is now paused waiting\n" +
			"for a focus decision.",
		Flags: func() *pflag.FlagSet { return a.flags("skip-focus") },
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				return client.SkipFocus(a.ctx)
			})
		},
	}
}

func shutdownCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "shutdown",
		Summary: "Ask the instrument server process to exit.",
		Usage:   "scopelink shutdown [flags]",
		Flags:   func() *pflag.FlagSet { return a.flags("shutdown") },
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				if err := client.Shutdown(a.ctx); err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, "instrument shutdown acknowledged")
				return nil
			})
		},
	}
}
