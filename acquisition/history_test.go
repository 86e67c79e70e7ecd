// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/microscint/scopelink/acquisition"
	"github.com/microscint/scopelink/protocol"
)

func openHistory(t *testing.T) *acquisition.History {
	t.Helper()
	history, err := acquisition.OpenHistory(filepath.Join(t.TempDir(), "history.db"), nil)
	if err != nil {
		t.Fatalf("OpenHistory: %v", err)
	}
	t.Cleanup(func() { history.Close() })
	return history
}

func TestHistoryRecordAndQuery(t *testing.T) {
	history := openHistory(t)
	ctx := context.Background()

	params := protocol.AcquisitionParams{
		ScanType:   "brightfield 20x",
		OutputPath: "/data/scans/s1",
		SampleID:   "sample-1",
		SlideID:    "slide-9",
		Region:     "region-2",
	}
	started := acquisition.Snapshot{
		ID:        uuid.New(),
		Status:    acquisition.Queued,
		StartedAt: time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	if err := history.RecordStart(ctx, started, params); err != nil {
		t.Fatalf("RecordStart: %v", err)
	}

	records, err := history.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Recent returned %d records, want 1", len(records))
	}
	record := records[0]
	if record.ID != started.ID {
		t.Errorf("ID = %v, want %v", record.ID, started.ID)
	}
	if record.ScanType != params.ScanType || record.SampleID != params.SampleID {
		t.Errorf("record = %+v, want params %+v", record, params)
	}
	if !record.FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero for an in-flight scan", record.FinishedAt)
	}

	finished := started
	finished.Status = acquisition.Failed
	finished.Progress = acquisition.Progress{Tile: 4, Total: 10}
	finished.UpdatedAt = started.StartedAt.Add(3 * time.Minute)
	finished.Err = &protocol.HardwareError{Message: "stage fault"}
	if err := history.RecordResult(ctx, finished); err != nil {
		t.Fatalf("RecordResult: %v", err)
	}

	records, err = history.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	record = records[0]
	if record.Status != "failed" {
		t.Errorf("Status = %q, want %q", record.Status, "failed")
	}
	if record.Tiles != 4 || record.TotalTiles != 10 {
		t.Errorf("progress = %d/%d, want 4/10", record.Tiles, record.TotalTiles)
	}
	if record.Error != "instrument: stage fault" {
		t.Errorf("Error = %q, want the hardware error text", record.Error)
	}
	if !record.FinishedAt.Equal(finished.UpdatedAt) {
		t.Errorf("FinishedAt = %v, want %v", record.FinishedAt, finished.UpdatedAt)
	}
}

func TestHistoryRecentOrderAndLimit(t *testing.T) {
	history := openHistory(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snapshot := acquisition.Snapshot{
			ID:        uuid.New(),
			Status:    acquisition.Queued,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
		params := protocol.AcquisitionParams{
			ScanType:   "fluorescence 40x",
			OutputPath: "/data/scans/batch",
			SampleID:   fmt.Sprintf("sample-%d", i),
			SlideID:    "slide-1",
			Region:     "region-1",
		}
		if err := history.RecordStart(ctx, snapshot, params); err != nil {
			t.Fatalf("RecordStart %d: %v", i, err)
		}
	}

	records, err := history.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Recent returned %d records, want 3", len(records))
	}
	for i := 0; i < len(records)-1; i++ {
		if records[i].StartedAt.Before(records[i+1].StartedAt) {
			t.Errorf("records out of order: %v before %v", records[i].StartedAt, records[i+1].StartedAt)
		}
	}
	if records[0].SampleID != "sample-4" {
		t.Errorf("newest record SampleID = %q, want sample-4", records[0].SampleID)
	}
}
