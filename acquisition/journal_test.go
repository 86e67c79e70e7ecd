// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/microscint/scopelink/acquisition"
)

func TestJournalRoundTrip(t *testing.T) {
	session := uuid.New()
	events := []acquisition.Event{
		{Time: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), Session: session, Kind: acquisition.EventStatus, Status: "running"},
		{Time: time.Date(2026, 3, 14, 9, 0, 2, 0, time.UTC), Session: session, Kind: acquisition.EventProgress, Tile: 3, Total: 10},
		{Time: time.Date(2026, 3, 14, 9, 0, 4, 0, time.UTC), Session: session, Kind: acquisition.EventFocus, Message: "skipped"},
		{Time: time.Date(2026, 3, 14, 9, 0, 20, 0, time.UTC), Session: session, Kind: acquisition.EventStatus, Status: "completed", Tile: 10, Total: 10},
	}

	var buf bytes.Buffer
	writer := acquisition.NewJournalWriter(&buf)
	for _, event := range events {
		if err := writer.Append(event); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := acquisition.ReadJournal(&buf)
	if err != nil {
		t.Fatalf("ReadJournal: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	for i, want := range events {
		if !got[i].Time.Equal(want.Time) {
			t.Errorf("event %d Time = %v, want %v", i, got[i].Time, want.Time)
		}
		got[i].Time = want.Time
		if got[i] != want {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestJournalFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.journal")

	// Two separate writers simulate two CLI runs appending to the
	// same journal.
	for run := 0; run < 2; run++ {
		writer, err := acquisition.OpenJournal(path)
		if err != nil {
			t.Fatalf("OpenJournal: %v", err)
		}
		event := acquisition.Event{
			Time:    time.Now().UTC(),
			Session: uuid.New(),
			Kind:    acquisition.EventStatus,
			Status:  "completed",
		}
		if err := writer.Append(event); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	events, err := acquisition.ReadJournalFile(path)
	if err != nil {
		t.Fatalf("ReadJournalFile: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("read %d events, want 2", len(events))
	}
	if events[0].Session == events[1].Session {
		t.Error("events share a session ID, want distinct runs")
	}
}
