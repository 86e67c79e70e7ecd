// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/microscint/scopelink/acquisition"
	"github.com/microscint/scopelink/cmd/scopelink/cli"
	"github.com/microscint/scopelink/lib/codec"
)

func historyCommand(a *app) *cli.Command {
	var limit int
	return &cli.Command{
		Name:    "history",
		Summary: "List recent scans from the history store.",
		Usage:   "scopelink history [flags]",
		Flags: func() *pflag.FlagSet {
			fs := a.flags("history")
			fs.IntVar(&limit, "limit", 20, "maximum number of scans to list")
			return fs
		},
		Run: func(args []string) error {
			cfg, logger, err := a.load()
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" {
				return fmt.Errorf("history_path is not configured")
			}
			history, err := acquisition.OpenHistory(cfg.HistoryPath, logger)
			if err != nil {
				return err
			}
			defer history.Close()

			records, err := history.Recent(a.ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSAMPLE\tSLIDE\tREGION\tSCAN TYPE\tSTATUS\tTILES\tERROR")
			for _, record := range records {
				tiles := ""
				if record.TotalTiles > 0 {
					tiles = fmt.Sprintf("%d/%d", record.Tiles, record.TotalTiles)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					record.StartedAt.Local().Format(time.DateTime),
					record.SampleID, record.SlideID, record.Region,
					record.ScanType, record.Status, tiles, record.Error)
			}
			return tw.Flush()
		},
	}
}

func journalCommand(a *app) *cli.Command {
	var raw bool
	return &cli.Command{
		Name:    "journal",
		Summary: "Decode an acquisition journal file.",
		Usage:   "scopelink journal <file> [flags]",
		Flags: func() *pflag.FlagSet {
			fs := a.flags("journal")
			fs.BoolVar(&raw, "raw", false, "print CBOR diagnostic notation instead of the event table")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("journal requires exactly one file argument")
			}
			if raw {
				return printRawJournal(args[0])
			}

			events, err := acquisition.ReadJournalFile(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSESSION\tKIND\tSTATUS\tTILE\tMESSAGE")
			for _, event := range events {
				tile := ""
				if event.Total > 0 {
					tile = fmt.Sprintf("%d/%d", event.Tile, event.Total)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					event.Time.Local().Format(time.DateTime),
					event.Session, event.Kind, event.Status, tile, event.Message)
			}
			return tw.Flush()
		},
	}
}

// printRawJournal prints each record in CBOR diagnostic notation,
// which survives schema drift that the typed decoder would reject.
func printRawJournal(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for len(data) > 0 {
		diagnostic, rest, err := codec.DiagnoseFirst(data)
		if err != nil {
			return fmt.Errorf("decoding journal record: %w", err)
		}
		fmt.Println(diagnostic)
		data = rest
	}
	return nil
}
