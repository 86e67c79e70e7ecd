// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/microscint/scopelink/acquisition"
	"github.com/microscint/scopelink/lib/testutil"
	"github.com/microscint/scopelink/protocol"
)

// scriptedInstrument is an in-memory Sender: scan-status polls consume
// the scripted reply lines (the last one repeats), every other command
// is acknowledged with a bare OK. It records every line sent.
type scriptedInstrument struct {
	mu       sync.Mutex
	statuses []string
	sent     []string
}

func (s *scriptedInstrument) Send(ctx context.Context, line string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, line)
	if strings.HasPrefix(line, "--cmd "+protocol.VerbScanStatus) {
		reply := s.statuses[0]
		if len(s.statuses) > 1 {
			s.statuses = s.statuses[1:]
		}
		return reply, nil
	}
	return "OK", nil
}

func (s *scriptedInstrument) sentLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *scriptedInstrument) sentVerb(verb string) bool {
	for _, line := range s.sentLines() {
		if strings.HasPrefix(line, "--cmd "+verb) {
			return true
		}
	}
	return false
}

func startMonitor(t *testing.T, cfg acquisition.Config) *acquisition.Monitor {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	monitor, err := acquisition.StartMonitor(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}
	return monitor
}

func TestMonitorCompletes(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=queued",
		"OK status=running tile=3/10",
		"OK status=running tile=7/10",
		"OK status=complete tile=10/10",
	}}

	var progressMu sync.Mutex
	var progress []acquisition.Progress
	monitor := startMonitor(t, acquisition.Config{
		Sender: instrument,
		OnProgress: func(p acquisition.Progress, elapsed time.Duration) {
			progressMu.Lock()
			progress = append(progress, p)
			progressMu.Unlock()
			if elapsed < 0 {
				t.Errorf("elapsed = %v, want >= 0", elapsed)
			}
		},
	})

	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor did not finish")
	if err := monitor.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}

	snapshot := monitor.Session()
	if snapshot.Status != acquisition.Completed {
		t.Errorf("Status = %v, want Completed", snapshot.Status)
	}
	if snapshot.Progress != (acquisition.Progress{Tile: 10, Total: 10}) {
		t.Errorf("Progress = %+v, want 10/10", snapshot.Progress)
	}

	progressMu.Lock()
	defer progressMu.Unlock()
	want := []acquisition.Progress{{Tile: 3, Total: 10}, {Tile: 7, Total: 10}, {Tile: 10, Total: 10}}
	if len(progress) != len(want) {
		t.Fatalf("progress callbacks = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %+v, want %+v", i, progress[i], want[i])
		}
	}
}

func TestMonitorTransitionsReported(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=queued",
		"OK status=running tile=1/4",
		"OK status=complete tile=4/4",
	}}

	var mu sync.Mutex
	var transitions []acquisition.Status
	monitor := startMonitor(t, acquisition.Config{
		Sender: instrument,
		OnTransition: func(snapshot acquisition.Snapshot) {
			mu.Lock()
			transitions = append(transitions, snapshot.Status)
			mu.Unlock()
		},
	})

	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor did not finish")

	mu.Lock()
	defer mu.Unlock()
	want := []acquisition.Status{acquisition.Running, acquisition.Completed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestMonitorFailureSurfacesHardwareError(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=running tile=2/10",
		`OK status=failed tile=2/10 error="stage fault: tile acquisition failed"`,
	}}
	monitor := startMonitor(t, acquisition.Config{Sender: instrument})

	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor did not finish")
	err := monitor.Err()
	if !protocol.IsHardwareError(err) {
		t.Fatalf("Err = %v, want *HardwareError", err)
	}
	if !strings.Contains(err.Error(), "stage fault") {
		t.Errorf("Err = %q, want the instrument's message", err)
	}
	if got := monitor.Session().Status; got != acquisition.Failed {
		t.Errorf("Status = %v, want Failed", got)
	}
}

// TestMonitorAutoSkipIsBounded is the regression guard for the
// historical failure mode where a focus request with nobody to answer
// it hung an acquisition for hours: with no handler configured, the
// monitor must send an explicit skip and finish promptly.
func TestMonitorAutoSkipIsBounded(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=running tile=4/10",
		"OK status=waiting-focus tile=4/10",
		"OK status=complete tile=10/10",
	}}
	monitor := startMonitor(t, acquisition.Config{Sender: instrument})

	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor hung on a manual focus request")
	if err := monitor.Err(); err != nil {
		t.Fatalf("Err = %v, want nil", err)
	}
	if !instrument.sentVerb(protocol.VerbSkipFocus) {
		t.Error("no skip-focus command was sent")
	}
	if instrument.sentVerb(protocol.VerbConfirmFocus) {
		t.Error("confirm-focus sent, want skip only")
	}
}

func TestMonitorFocusHandlerTimeoutSkips(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=waiting-focus tile=1/10",
		"OK status=complete tile=10/10",
	}}
	monitor := startMonitor(t, acquisition.Config{
		Sender:       instrument,
		FocusTimeout: 20 * time.Millisecond,
		Focus: acquisition.FocusHandlerFunc(func(ctx context.Context, request acquisition.FocusRequest) (acquisition.FocusDecision, error) {
			<-ctx.Done()
			return acquisition.ConfirmAt(1.0), ctx.Err()
		}),
	})

	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor hung on a stalled focus handler")
	if !instrument.sentVerb(protocol.VerbSkipFocus) {
		t.Error("no skip-focus command was sent after the handler timed out")
	}
	if instrument.sentVerb(protocol.VerbConfirmFocus) {
		t.Error("confirm-focus sent, want skip after timeout")
	}
}

func TestMonitorFocusConfirm(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=waiting-focus tile=5/10",
		"OK status=complete tile=10/10",
	}}
	monitor := startMonitor(t, acquisition.Config{
		Sender: instrument,
		Focus: acquisition.FocusHandlerFunc(func(ctx context.Context, request acquisition.FocusRequest) (acquisition.FocusDecision, error) {
			if request.Progress.Tile != 5 {
				t.Errorf("request.Progress.Tile = %d, want 5", request.Progress.Tile)
			}
			return acquisition.ConfirmAt(77.5), nil
		}),
	})

	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor did not finish")
	confirmed := false
	for _, line := range instrument.sentLines() {
		if line == "--cmd confirm-focus --z 77.5" {
			confirmed = true
		}
	}
	if !confirmed {
		t.Errorf("confirm-focus with z=77.5 not sent; sent lines: %v", instrument.sentLines())
	}
}

func TestMonitorCancelSendsStop(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=running tile=1/100",
	}}
	monitor := startMonitor(t, acquisition.Config{
		Sender:       instrument,
		PollInterval: 5 * time.Millisecond,
	})

	monitor.Cancel()
	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor did not exit after Cancel")
	if err := monitor.Err(); err != nil {
		t.Fatalf("Err = %v, want nil after cooperative cancel", err)
	}
	if got := monitor.Session().Status; got != acquisition.Cancelled {
		t.Errorf("Status = %v, want Cancelled", got)
	}
	if !instrument.sentVerb(protocol.VerbStopScan) {
		t.Error("no stop-scan command was sent")
	}
}

func TestMonitorContextCancellation(t *testing.T) {
	instrument := &scriptedInstrument{statuses: []string{
		"OK status=running tile=1/100",
	}}
	ctx, cancel := context.WithCancel(context.Background())
	monitor, err := acquisition.StartMonitor(ctx, acquisition.Config{
		Sender:       instrument,
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}

	cancel()
	testutil.RequireClosed(t, monitor.Done(), 5*time.Second, "monitor did not exit after context cancellation")
	if !errors.Is(monitor.Err(), context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", monitor.Err())
	}
	if got := monitor.Session().Status; got != acquisition.Cancelled {
		t.Errorf("Status = %v, want Cancelled", got)
	}
	if !instrument.sentVerb(protocol.VerbStopScan) {
		t.Error("no stop-scan command was sent despite the cancelled context")
	}
}

func TestMonitorRequiresSender(t *testing.T) {
	if _, err := acquisition.StartMonitor(context.Background(), acquisition.Config{}); err == nil {
		t.Fatal("StartMonitor accepted a config without a Sender")
	}
}
