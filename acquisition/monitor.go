// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/microscint/scopelink/lib/clock"
	"github.com/microscint/scopelink/protocol"
)

// Default configuration values.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultFocusTimeout = 30 * time.Second
)

// Sender is the slice of the transport the monitor needs: one
// serialized round trip. A non-positive timeout uses the transport's
// default read timeout.
type Sender interface {
	Send(ctx context.Context, line string, timeout time.Duration) (string, error)
}

// Config holds the parameters for a Monitor. Sender is required; all
// other fields have defaults.
type Config struct {
	// Sender performs status polls and focus answers. Required.
	Sender Sender

	// PollInterval is the pause between status polls.
	PollInterval time.Duration

	// StatusTimeout is the per-poll read timeout. Zero uses the
	// transport's default.
	StatusTimeout time.Duration

	// FocusTimeout bounds each FocusHandler invocation. A handler
	// still running when it elapses is abandoned and the request is
	// answered with a skip.
	FocusTimeout time.Duration

	// Focus answers the instrument's manual focus requests. Defaults
	// to AutoSkip.
	Focus FocusHandler

	// OnProgress is called after each poll that carries a tile
	// counter, with the counter and the elapsed time since the session
	// started. Advisory: it never affects state transitions.
	OnProgress func(Progress, time.Duration)

	// OnTransition is called whenever the session's status changes,
	// with a snapshot taken after the change.
	OnTransition func(Snapshot)

	// Logger receives poll and focus logs. Nil discards.
	Logger *slog.Logger

	// Clock drives poll pacing. Nil uses the real clock.
	Clock clock.Clock
}

// Monitor owns the poll loop for one started acquisition. Create one
// with StartMonitor immediately after the start command succeeds.
type Monitor struct {
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
	session *session

	cancelOnce sync.Once
	cancelCh   chan struct{}

	done chan struct{}
	err  error // written by the poll goroutine before done closes
}

// StartMonitor launches the poll goroutine for an acquisition whose
// start command has already been acknowledged. The loop runs until a
// terminal status, a transport failure, a cancelled ctx, or Cancel.
func StartMonitor(ctx context.Context, cfg Config) (*Monitor, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("acquisition: Sender is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FocusTimeout <= 0 {
		cfg.FocusTimeout = DefaultFocusTimeout
	}
	if cfg.Focus == nil {
		cfg.Focus = AutoSkip{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	m := &Monitor{
		config:   cfg,
		clock:    cfg.Clock,
		session:  newSession(cfg.Clock.Now()),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	m.logger = cfg.Logger.With("session", m.session.id.String())
	go m.run(ctx)
	return m, nil
}

// Session returns a snapshot of the session's current state.
func (m *Monitor) Session() Snapshot { return m.session.snapshot() }

// Done is closed when the poll loop has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Err returns the loop's terminal error. Nil until Done is closed, and
// nil for a completed or cancelled acquisition.
func (m *Monitor) Err() error {
	select {
	case <-m.done:
		return m.err
	default:
		return nil
	}
}

// Cancel requests cooperative cancellation. The loop notices between
// polls, sends a stop command, and exits with status Cancelled. It
// never interrupts a round trip in flight: abandoning one would leave
// an unread reply that desynchronizes the next caller.
func (m *Monitor) Cancel() {
	m.cancelOnce.Do(func() { close(m.cancelCh) })
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.stopScan(ctx)
			m.err = ctx.Err()
			return
		case <-m.cancelCh:
			m.stopScan(ctx)
			return
		default:
		}

		terminal, err := m.poll(ctx)
		if err != nil {
			m.session.fail(err, m.clock.Now())
			m.notifyTransition()
			m.logger.Error("acquisition failed", "error", err)
			m.err = err
			return
		}
		if terminal {
			return
		}

		select {
		case <-ctx.Done():
			m.stopScan(ctx)
			m.err = ctx.Err()
			return
		case <-m.cancelCh:
			m.stopScan(ctx)
			return
		case <-m.clock.After(m.config.PollInterval):
		}
	}
}

// poll performs one status round trip and applies the result. It
// reports whether the session reached a terminal status. A returned
// error is itself terminal: the transport gave up, the reply did not
// parse, or the instrument reported a scan failure.
func (m *Monitor) poll(ctx context.Context) (bool, error) {
	line, err := m.config.Sender.Send(ctx, protocol.StatusRequest().Encode(), m.config.StatusTimeout)
	if err != nil {
		return true, err
	}
	reply, err := protocol.ParseReply(line)
	if err != nil {
		return true, err
	}
	report, err := protocol.ParseStatusReport(reply)
	if err != nil {
		return true, err
	}

	now := m.clock.Now()
	if report.Total > 0 {
		progress := Progress{Tile: report.Tile, Total: report.Total}
		m.session.setProgress(progress, now)
		if m.config.OnProgress != nil {
			m.config.OnProgress(progress, now.Sub(m.session.startedAt))
		}
	}

	switch report.State {
	case protocol.StateQueued:
		m.transition(Queued, now)
	case protocol.StateRunning:
		m.transition(Running, now)
	case protocol.StateWaitingFocus:
		m.transition(AwaitingManualFocus, now)
		if err := m.answerFocus(ctx, report); err != nil {
			return true, err
		}
		m.transition(Running, m.clock.Now())
	case protocol.StateComplete:
		m.transition(Completed, now)
		m.logger.Info("acquisition complete", "tiles", report.Total)
		return true, nil
	case protocol.StateFailed:
		return true, &protocol.HardwareError{Message: report.Message}
	case protocol.StateCancelled:
		m.transition(Cancelled, now)
		m.logger.Info("acquisition cancelled by instrument")
		return true, nil
	}
	return false, nil
}

// answerFocus obtains a focus decision and sends it. The handler runs
// in its own goroutine so that even one that ignores its context
// cannot stall the acquisition: when FocusTimeout elapses the handler
// is abandoned and the request is answered with a skip.
func (m *Monitor) answerFocus(ctx context.Context, report protocol.StatusReport) error {
	request := FocusRequest{
		Session:  m.session.id,
		Progress: Progress{Tile: report.Tile, Total: report.Total},
		Message:  report.Message,
	}

	focusCtx, cancel := context.WithTimeout(ctx, m.config.FocusTimeout)
	defer cancel()

	type answer struct {
		decision FocusDecision
		err      error
	}
	answers := make(chan answer, 1)
	go func() {
		decision, err := m.config.Focus.HandleFocusRequest(focusCtx, request)
		answers <- answer{decision, err}
	}()

	decision := Skip()
	select {
	case a := <-answers:
		if a.err != nil {
			m.logger.Warn("focus handler failed, skipping", "error", a.err)
		} else {
			decision = a.decision
		}
	case <-focusCtx.Done():
		m.logger.Warn("focus handler timed out, skipping", "timeout", m.config.FocusTimeout)
	}

	line := protocol.SkipFocusRequest().Encode()
	if decision.Confirm {
		line = protocol.ConfirmFocusRequest(decision.ZMicrons).Encode()
		m.logger.Info("confirming focus", "z", decision.ZMicrons)
	} else {
		m.logger.Info("skipping manual focus")
	}

	replyLine, err := m.config.Sender.Send(ctx, line, m.config.StatusTimeout)
	if err != nil {
		return err
	}
	if _, err := protocol.ParseReply(replyLine); err != nil {
		return err
	}
	return nil
}

// stopScan tells the instrument to abandon the scan and marks the
// session Cancelled. It runs under a context detached from the loop's,
// so a cancelled ctx still gets its stop command onto the wire.
func (m *Monitor) stopScan(ctx context.Context) {
	line, err := m.config.Sender.Send(context.WithoutCancel(ctx), protocol.StopRequest().Encode(), m.config.StatusTimeout)
	if err != nil {
		m.logger.Warn("stop command failed", "error", err)
	} else if _, err := protocol.ParseReply(line); err != nil {
		m.logger.Warn("stop command refused", "error", err)
	}
	m.transition(Cancelled, m.clock.Now())
}

func (m *Monitor) transition(status Status, now time.Time) {
	if m.session.setStatus(status, now) {
		m.logger.Info("session status", "status", status.String())
		m.notifyTransition()
	}
}

func (m *Monitor) notifyTransition() {
	if m.config.OnTransition != nil {
		m.config.OnTransition(m.session.snapshot())
	}
}
