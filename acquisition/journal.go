// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/microscint/scopelink/lib/codec"
)

// EventKind labels a journal event.
type EventKind string

const (
	// EventStatus records a session status transition.
	EventStatus EventKind = "status"
	// EventProgress records a tile counter update.
	EventProgress EventKind = "progress"
	// EventFocus records a manual focus episode and its outcome.
	EventFocus EventKind = "focus"
)

// Event is one journal record. Events are appended as a CBOR stream,
// one record per monitor callback, so a crashed run leaves a readable
// prefix rather than a corrupt file.
type Event struct {
	Time    time.Time `cbor:"time"`
	Session uuid.UUID `cbor:"session"`
	Kind    EventKind `cbor:"kind"`
	Status  string    `cbor:"status,omitempty"`
	Tile    int       `cbor:"tile,omitempty"`
	Total   int       `cbor:"total,omitempty"`
	Message string    `cbor:"message,omitempty"`
}

// JournalWriter appends events to a CBOR stream. Safe for concurrent
// use: the monitor's callbacks may fire from its poll goroutine while
// the CLI writes its own markers.
type JournalWriter struct {
	mu      sync.Mutex
	encoder *codec.Encoder
	closer  io.Closer
}

// NewJournalWriter wraps an open stream. The caller owns the stream's
// lifetime.
func NewJournalWriter(w io.Writer) *JournalWriter {
	return &JournalWriter{encoder: codec.NewEncoder(w)}
}

// OpenJournal opens (creating if needed) an append-mode journal file.
// Close releases it.
func OpenJournal(path string) (*JournalWriter, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("acquisition: opening journal: %w", err)
	}
	writer := NewJournalWriter(file)
	writer.closer = file
	return writer, nil
}

// Append encodes one event onto the stream.
func (w *JournalWriter) Append(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.encoder.Encode(event); err != nil {
		return fmt.Errorf("acquisition: appending journal event: %w", err)
	}
	return nil
}

// Close closes the underlying file when the writer owns one.
func (w *JournalWriter) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// ReadJournal decodes every event in a journal stream.
func ReadJournal(r io.Reader) ([]Event, error) {
	decoder := codec.NewDecoder(r)
	var events []Event
	for {
		var event Event
		err := decoder.Decode(&event)
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, fmt.Errorf("acquisition: reading journal event %d: %w", len(events), err)
		}
		events = append(events, event)
	}
}

// ReadJournalFile decodes every event in a journal file.
func ReadJournalFile(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("acquisition: opening journal: %w", err)
	}
	defer file.Close()
	return ReadJournal(file)
}
