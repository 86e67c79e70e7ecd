// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/microscint/scopelink/cmd/scopelink/cli"
	"github.com/microscint/scopelink/lib/config"
	"github.com/microscint/scopelink/protocol"
	"github.com/microscint/scopelink/scope"
)

func statusCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "Show the connection state and instrument reachability.",
		Usage:   "scopelink status [flags]",
		Flags:   func() *pflag.FlagSet { return a.flags("status") },
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				position, err := client.Position(a.ctx)
				if err != nil {
					fmt.Printf("address: %s\nstate: %s\nprobe: failed: %v\n",
						cfg.Instrument.Address, client.State(), err)
					return err
				}
				fmt.Printf("address: %s\nstate: %s\nprobe: ok (x=%v y=%v)\n",
					cfg.Instrument.Address, client.State(), position.X, position.Y)
				return nil
			})
		},
	}
}

func positionCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "position",
		Summary: "Print the stage position on every axis.",
		Usage:   "scopelink position [flags]",
		Flags:   func() *pflag.FlagSet { return a.flags("position") },
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				position, err := client.Position(a.ctx)
				if err != nil {
					return err
				}
				z, err := client.ZPosition(a.ctx)
				if err != nil {
					return err
				}
				rotation, err := client.Rotation(a.ctx)
				if err != nil {
					return err
				}
				fmt.Printf("x=%v y=%v z=%v rotation=%v\n", position.X, position.Y, z, rotation)
				return nil
			})
		},
	}
}

func moveCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "move",
		Summary: "Move one stage axis to an absolute target.",
		Usage:   "scopelink move <axis> <target> [flags]",
		Examples: []cli.Example{
			{Description: "Move the X axis to 1250.5 micrometers", Command: "scopelink move x 1250.5"},
			{Description: "Rotate the stage to 90 degrees", Command: "scopelink move rotation 90"},
		},
		Flags: func() *pflag.FlagSet { return a.flags("move") },
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("move requires an axis and a target, got %d arguments", len(args))
			}
			axis := protocol.Axis(args[0])
			switch axis {
			case protocol.AxisX, protocol.AxisY, protocol.AxisZ, protocol.AxisRotation:
			default:
				return fmt.Errorf("unknown axis %q (want x, y, z, or rotation)", args[0])
			}
			target, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("target %q is not a number", args[1])
			}
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				return client.MoveAxis(a.ctx, axis, target)
			})
		},
	}
}
