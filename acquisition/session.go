// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the monitor-side state of an acquisition session.
type Status int

const (
	// Queued means the instrument accepted the scan but has not begun
	// acquiring tiles.
	Queued Status = iota
	// Running means tiles are being acquired.
	Running
	// AwaitingManualFocus means the instrument paused for a focus
	// decision and the monitor is obtaining one.
	AwaitingManualFocus
	// Completed, Failed and Cancelled are terminal.
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case AwaitingManualFocus:
		return "awaiting-manual-focus"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether the session can change no further.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Progress is the instrument-reported tile counter.
type Progress struct {
	Tile  int
	Total int
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID        uuid.UUID
	Status    Status
	Progress  Progress
	StartedAt time.Time
	UpdatedAt time.Time
	// Err is the terminal failure, nil unless Status is Failed.
	Err error
}

// session is the monitor's mutable record of one acquisition. Only the
// poll goroutine writes it; Snapshot is the read side.
type session struct {
	id        uuid.UUID
	startedAt time.Time

	mu        sync.Mutex
	status    Status
	progress  Progress
	updatedAt time.Time
	err       error
}

func newSession(now time.Time) *session {
	return &session{
		id:        uuid.New(),
		startedAt: now,
		status:    Queued,
		updatedAt: now,
	}
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:        s.id,
		Status:    s.status,
		Progress:  s.progress,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
		Err:       s.err,
	}
}

func (s *session) setStatus(status Status, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == status {
		return false
	}
	s.status = status
	s.updatedAt = now
	return true
}

func (s *session) setProgress(progress Progress, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = progress
	s.updatedAt = now
}

func (s *session) fail(err error, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Failed
	s.err = err
	s.updatedAt = now
}
