// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/microscint/scopelink/lib/sqlitepool"
	"github.com/microscint/scopelink/protocol"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS scans (
	id          TEXT PRIMARY KEY,
	scan_type   TEXT NOT NULL,
	sample_id   TEXT NOT NULL,
	slide_id    TEXT NOT NULL,
	region      TEXT NOT NULL,
	status      TEXT NOT NULL,
	tiles       INTEGER NOT NULL DEFAULT 0,
	total_tiles INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS scans_started_at ON scans (started_at DESC);
`

// ScanRecord is one row of the scan history.
type ScanRecord struct {
	ID         uuid.UUID
	ScanType   string
	SampleID   string
	SlideID    string
	Region     string
	Status     string
	Tiles      int
	TotalTiles int
	Error      string
	StartedAt  time.Time
	// FinishedAt is zero while the scan is still in flight.
	FinishedAt time.Time
}

// History is the durable record of started scans and their outcomes,
// backed by SQLite. A scan gets a row when its start command is
// acknowledged and the row is finalized when its monitor exits, so an
// interrupted run is visible as a row with no finish time.
type History struct {
	pool *sqlitepool.Pool
}

// OpenHistory opens (creating if needed) the history database.
func OpenHistory(path string, logger *slog.Logger) (*History, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, historySchema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &History{pool: pool}, nil
}

// Close closes the underlying pool.
func (h *History) Close() error { return h.pool.Close() }

// RecordStart inserts the row for a newly acknowledged scan.
func (h *History) RecordStart(ctx context.Context, snapshot Snapshot, params protocol.AcquisitionParams) error {
	conn, err := h.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer h.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO scans (id, scan_type, sample_id, slide_id, region, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			snapshot.ID.String(),
			params.ScanType,
			params.SampleID,
			params.SlideID,
			params.Region,
			snapshot.Status.String(),
			snapshot.StartedAt.UTC().Format(time.RFC3339Nano),
		}},
	)
	if err != nil {
		return fmt.Errorf("acquisition: recording scan start: %w", err)
	}
	return nil
}

// RecordResult finalizes a scan's row with its terminal state.
func (h *History) RecordResult(ctx context.Context, snapshot Snapshot) error {
	conn, err := h.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer h.pool.Put(conn)

	errorText := ""
	if snapshot.Err != nil {
		errorText = snapshot.Err.Error()
	}
	err = sqlitex.Execute(conn,
		`UPDATE scans
		 SET status = ?, tiles = ?, total_tiles = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{
			snapshot.Status.String(),
			snapshot.Progress.Tile,
			snapshot.Progress.Total,
			errorText,
			snapshot.UpdatedAt.UTC().Format(time.RFC3339Nano),
			snapshot.ID.String(),
		}},
	)
	if err != nil {
		return fmt.Errorf("acquisition: recording scan result: %w", err)
	}
	return nil
}

// Recent returns the most recently started scans, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]ScanRecord, error) {
	conn, err := h.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer h.pool.Put(conn)

	var records []ScanRecord
	var scanErr error
	err = sqlitex.Execute(conn,
		`SELECT id, scan_type, sample_id, slide_id, region, status,
		        tiles, total_tiles, error, started_at, finished_at
		 FROM scans ORDER BY started_at DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record := ScanRecord{
					ScanType:   stmt.ColumnText(1),
					SampleID:   stmt.ColumnText(2),
					SlideID:    stmt.ColumnText(3),
					Region:     stmt.ColumnText(4),
					Status:     stmt.ColumnText(5),
					Tiles:      stmt.ColumnInt(6),
					TotalTiles: stmt.ColumnInt(7),
					Error:      stmt.ColumnText(8),
				}
				if record.ID, scanErr = uuid.Parse(stmt.ColumnText(0)); scanErr != nil {
					return scanErr
				}
				if record.StartedAt, scanErr = time.Parse(time.RFC3339Nano, stmt.ColumnText(9)); scanErr != nil {
					return scanErr
				}
				if finished := stmt.ColumnText(10); finished != "" {
					if record.FinishedAt, scanErr = time.Parse(time.RFC3339Nano, finished); scanErr != nil {
						return scanErr
					}
				}
				records = append(records, record)
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("acquisition: querying scan history: %w", err)
	}
	return records, nil
}
