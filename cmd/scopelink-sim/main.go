// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Scopelink-sim is a stand-in microscope automation server for
// development and integration testing. It speaks the control protocol
// on a TCP listener, simulates the stage and scan progression, and can
// inject the faults the client is expected to absorb: error replies,
// delayed replies, and dropped connections.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microscint/scopelink/lib/process"
	"github.com/microscint/scopelink/lib/version"
	"github.com/microscint/scopelink/simulator"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		showVersion   bool
		listen        string
		metricsListen string
		totalTiles    int
		focusAtTile   int
		failAtTile    int
		failEveryNth  int
		responseDelay time.Duration
		x, y, z       float64
		rotation      float64
	)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.StringVar(&listen, "listen", "127.0.0.1:9760", "control protocol listen address")
	flag.StringVar(&metricsListen, "metrics-listen", "", "prometheus metrics listen address (empty disables)")
	flag.IntVar(&totalTiles, "total-tiles", 10, "tiles per simulated scan")
	flag.IntVar(&focusAtTile, "focus-at-tile", 0, "raise a manual focus request at this tile (0 disables)")
	flag.IntVar(&failAtTile, "fail-at-tile", 0, "fail the scan at this tile (0 disables)")
	flag.IntVar(&failEveryNth, "fail-every-nth", 0, "drop the connection before replying to every nth request (0 disables)")
	flag.DurationVar(&responseDelay, "response-delay", 0, "artificial delay before each reply")
	flag.Float64Var(&x, "x", 0, "initial stage X position in micrometers")
	flag.Float64Var(&y, "y", 0, "initial stage Y position in micrometers")
	flag.Float64Var(&z, "z", 0, "initial stage Z position in micrometers")
	flag.Float64Var(&rotation, "rotation", 0, "initial stage rotation in degrees")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Full())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	sim, err := simulator.Start(simulator.Config{
		Listen:             listen,
		TotalTiles:         totalTiles,
		FocusRequestAtTile: focusAtTile,
		FailAtTile:         failAtTile,
		FailEveryNth:       failEveryNth,
		ResponseDelay:      responseDelay,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer sim.Close()
	sim.SetPosition(x, y, z, rotation)

	if metricsListen != "" {
		metricsServer := &http.Server{Addr: metricsListen, Handler: promhttp.Handler()}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsServer.Close()
		logger.Info("metrics listening", "address", metricsListen)
	}

	logger.Info("simulator running", "address", sim.Addr(), "version", version.Info())
	<-ctx.Done()
	logger.Info("shutting down", "requests_served", sim.Requests())
	return nil
}
