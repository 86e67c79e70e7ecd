// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/microscint/scopelink/cmd/scopelink/cli"
	"github.com/microscint/scopelink/lib/config"
	"github.com/microscint/scopelink/scope"
	"github.com/microscint/scopelink/transport"
)

// app carries the global flags and the signal-bound context shared by
// every subcommand.
type app struct {
	ctx context.Context

	configPath string
	address    string
	verbose    bool
}

// globalFlags registers the flags every subcommand accepts.
func (a *app) globalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.configPath, "config", "", "path to the YAML configuration file (default $SCOPELINK_CONFIG)")
	fs.StringVar(&a.address, "address", "", "instrument host:port (overrides the configuration)")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
}

// flags builds a FlagSet preloaded with the global flags.
func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	a.globalFlags(fs)
	return fs
}

// load resolves the configuration and builds the command logger.
func (a *app) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, err
	}
	if a.address != "" {
		cfg.Instrument.Address = a.address
	}
	if cfg.Instrument.Address == "" {
		return nil, nil, fmt.Errorf("no instrument address: set instrument.address in the configuration or pass --address")
	}
	return cfg, cli.NewCommandLogger(a.verbose), nil
}

// dial builds the transport and client from the configuration and
// connects. The caller owns the returned client and must Close it.
func (a *app) dial(cfg *config.Config, logger *slog.Logger) (*scope.Client, error) {
	tr, err := transport.New(transport.Config{
		Address:     cfg.Instrument.Address,
		DialTimeout: cfg.Instrument.DialTimeout,
		ReadTimeout: cfg.Instrument.CommandTimeout,
		Reconnect: transport.ReconnectPolicy{
			Enabled:     cfg.Instrument.Reconnect.Enabled,
			MaxAttempts: cfg.Instrument.Reconnect.MaxAttempts,
			Delay:       cfg.Instrument.Reconnect.Delay,
		},
		HealthInterval: cfg.Instrument.HealthInterval,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	client, err := scope.New(scope.Config{
		Transport:          tr,
		CommandTimeout:     cfg.Instrument.CommandTimeout,
		CalibrationTimeout: cfg.Instrument.CalibrationTimeout,
		Logger:             logger,
	})
	if err != nil {
		tr.Close()
		return nil, err
	}
	if err := client.Connect(a.ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// connect is the common preamble for commands that talk to the
// instrument: load configuration, dial, hand the client to fn, close.
func (a *app) connect(fn func(*scope.Client, *config.Config, *slog.Logger) error) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}
	client, err := a.dial(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client, cfg, logger)
}
