// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/microscint/scopelink/acquisition"
	"github.com/microscint/scopelink/cmd/scopelink/cli"
	"github.com/microscint/scopelink/lib/config"
	"github.com/microscint/scopelink/lib/profile"
	"github.com/microscint/scopelink/protocol"
	"github.com/microscint/scopelink/scope"
)

type acquireFlags struct {
	profileName string
	scanType    string
	output      string
	sample      string
	slide       string
	region      string
	background  bool
	interactive bool
	noJournal   bool
	noHistory   bool
}

func acquireCommand(a *app) *cli.Command {
	var flags acquireFlags
	return &cli.Command{
		Name:    "acquire",
		Summary: "Start an acquisition and monitor it to completion.",
		Usage:   "scopelink acquire --output <path> --sample <id> --slide <id> --region <id> [flags]",
		Description: "Start an acquisition and poll it until it completes, fails, or is\n" +
			"cancelled. Hardware settings come from a named profile when --profile\n" +
			"is given; --scan-type may override the profile's modality. Progress is\n" +
			"reported on stderr, and manual focus requests are answered with an\n" +
			"explicit skip unless --interactive-focus is set on a terminal.",
		Examples: []cli.Example{
			{
				Description: "Brightfield scan using the 20x profile",
				Command:     "scopelink acquire --profile brightfield-20x --output /data/scans/s1 --sample s1 --slide sl9 --region r2",
			},
			{
				Description: "Background reference for flat-field correction",
				Command:     "scopelink acquire --background --profile brightfield-20x --output /data/bg --sample bg --slide sl9 --region r2",
			},
		},
		Flags: func() *pflag.FlagSet {
			fs := a.flags("acquire")
			fs.StringVar(&flags.profileName, "profile", "", "instrument profile name (from profile_dir)")
			fs.StringVar(&flags.scanType, "scan-type", "", "imaging modality (overrides the profile)")
			fs.StringVar(&flags.output, "output", "", "instrument-side output path for acquired tiles")
			fs.StringVar(&flags.sample, "sample", "", "sample identifier")
			fs.StringVar(&flags.slide, "slide", "", "slide identifier")
			fs.StringVar(&flags.region, "region", "", "scan region identifier")
			fs.BoolVar(&flags.background, "background", false, "acquire a background reference instead of a scan")
			fs.BoolVar(&flags.interactive, "interactive-focus", false, "prompt on manual focus requests instead of skipping")
			fs.BoolVar(&flags.noJournal, "no-journal", false, "skip writing the acquisition journal")
			fs.BoolVar(&flags.noHistory, "no-history", false, "skip recording the scan in the history store")
			return fs
		},
		Run: func(args []string) error {
			return a.connect(func(client *scope.Client, cfg *config.Config, logger *slog.Logger) error {
				return runAcquire(a.ctx, client, cfg, logger, flags)
			})
		},
	}
}

func runAcquire(ctx context.Context, client *scope.Client, cfg *config.Config, logger *slog.Logger, flags acquireFlags) error {
	params, err := buildParams(cfg, flags)
	if err != nil {
		return err
	}

	if flags.background {
		if err := client.StartBackground(ctx, params); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "background reference acquired")
		return nil
	}

	options := scope.MonitorOptions{
		PollInterval: cfg.Acquisition.PollInterval,
		FocusTimeout: cfg.Acquisition.FocusTimeout,
		OnProgress: func(p acquisition.Progress, elapsed time.Duration) {
			fmt.Fprintf(os.Stderr, "tile %d/%d elapsed %s\n", p.Tile, p.Total, elapsed.Round(time.Second))
		},
	}
	if flags.interactive && cli.Interactive() {
		options.Focus = acquisition.FocusHandlerFunc(promptFocus)
	}

	var journal *acquisition.JournalWriter
	if cfg.JournalDir != "" && !flags.noJournal {
		name := time.Now().UTC().Format("20060102T150405") + ".journal"
		journal, err = acquisition.OpenJournal(filepath.Join(cfg.JournalDir, name))
		if err != nil {
			return err
		}
		defer journal.Close()
		options.OnTransition = journalTransitions(journal, logger)
	}

	monitor, err := client.StartAcquisition(ctx, params, options)
	if err != nil {
		return err
	}

	var history *acquisition.History
	if cfg.HistoryPath != "" && !flags.noHistory {
		history, err = acquisition.OpenHistory(cfg.HistoryPath, logger)
		if err != nil {
			return err
		}
		defer history.Close()
		if err := history.RecordStart(ctx, monitor.Session(), params); err != nil {
			logger.Warn("recording scan start failed", "error", err)
		}
	}

	<-monitor.Done()
	final := monitor.Session()
	if history != nil {
		// The run is over; record the outcome even if ctx was the
		// reason it ended.
		if err := history.RecordResult(context.WithoutCancel(ctx), final); err != nil {
			logger.Warn("recording scan result failed", "error", err)
		}
	}

	switch final.Status {
	case acquisition.Completed:
		fmt.Fprintf(os.Stderr, "completed: %d/%d tiles in %s\n",
			final.Progress.Tile, final.Progress.Total,
			final.UpdatedAt.Sub(final.StartedAt).Round(time.Second))
		return nil
	case acquisition.Cancelled:
		fmt.Fprintln(os.Stderr, "cancelled")
		return monitor.Err()
	default:
		return monitor.Err()
	}
}

// buildParams assembles the acquisition parameters from the profile
// (when named) and the command-line overrides. Validation proper
// happens in protocol.NewAcquisition.
func buildParams(cfg *config.Config, flags acquireFlags) (protocol.AcquisitionParams, error) {
	params := protocol.AcquisitionParams{
		ScanType:   flags.scanType,
		OutputPath: flags.output,
		SampleID:   flags.sample,
		SlideID:    flags.slide,
		Region:     flags.region,
	}

	if flags.profileName == "" {
		return params, nil
	}
	if cfg.ProfileDir == "" {
		return params, fmt.Errorf("--profile given but profile_dir is not configured")
	}
	p, err := profile.Lookup(cfg.ProfileDir, flags.profileName)
	if err != nil {
		return params, err
	}

	if params.ScanType == "" {
		params.ScanType = p.ScanType
	}
	params.Objective = p.Objective
	params.Detector = p.Detector
	if p.PixelSizeMicrons != 0 {
		pixelSize := p.PixelSizeMicrons
		params.PixelSizeMicrons = &pixelSize
	}
	params.WhiteBalance = p.WhiteBalance
	params.Pipeline = append([]string(nil), p.Pipeline...)
	for i := range p.Angles {
		params.AngleExposures = append(params.AngleExposures, protocol.AngleExposure{
			AngleDegrees:   p.Angles[i],
			ExposureMillis: p.Exposures[i],
		})
	}
	return params, nil
}

// promptFocus asks the operator for a focus decision on stderr. The
// monitor abandons the prompt when its focus timeout elapses.
func promptFocus(ctx context.Context, request acquisition.FocusRequest) (acquisition.FocusDecision, error) {
	fmt.Fprintf(os.Stderr, "manual focus requested at tile %d/%d; enter Z in micrometers, or press Enter to skip: ",
		request.Progress.Tile, request.Progress.Total)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return acquisition.Skip(), err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return acquisition.Skip(), nil
	}
	z, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return acquisition.Skip(), fmt.Errorf("%q is not a number", line)
	}
	return acquisition.ConfirmAt(z), nil
}

// journalTransitions adapts a journal writer to the monitor's
// transition callback.
func journalTransitions(journal *acquisition.JournalWriter, logger *slog.Logger) func(acquisition.Snapshot) {
	return func(snapshot acquisition.Snapshot) {
		event := acquisition.Event{
			Time:    snapshot.UpdatedAt,
			Session: snapshot.ID,
			Kind:    acquisition.EventStatus,
			Status:  snapshot.Status.String(),
			Tile:    snapshot.Progress.Tile,
			Total:   snapshot.Progress.Total,
		}
		if snapshot.Err != nil {
			event.Message = snapshot.Err.Error()
		}
		if err := journal.Append(event); err != nil {
			logger.Warn("journal append failed", "error", err)
		}
	}
}
