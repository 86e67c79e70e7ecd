// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/microscint/scopelink/lib/clock"
	"github.com/microscint/scopelink/lib/netutil"
	"github.com/microscint/scopelink/protocol"
)

// Default configuration values.
const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultHealthInterval = 30 * time.Second
	DefaultMaxAttempts    = 3
	DefaultReconnectDelay = 2 * time.Second
)

// ReconnectPolicy bounds automatic reconnection after an I/O failure.
type ReconnectPolicy struct {
	// Enabled turns automatic reconnection on. When disabled, I/O
	// failures surface to the caller immediately with zero retries.
	Enabled bool

	// MaxAttempts is the number of redials per failure. Defaults to
	// DefaultMaxAttempts when Enabled and zero.
	MaxAttempts int

	// Delay is the pause between redial attempts. Defaults to
	// DefaultReconnectDelay when Enabled and zero.
	Delay time.Duration
}

// Config holds the parameters for a Transport. Address is required;
// all other fields have defaults.
type Config struct {
	// Address is the instrument's host:port. Required.
	Address string

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// ReadTimeout is the per-round-trip read deadline used when a Send
	// caller passes no explicit timeout, and by the health prober.
	ReadTimeout time.Duration

	// Reconnect is the automatic reconnection policy.
	Reconnect ReconnectPolicy

	// HealthInterval is the period between background health probes.
	// Zero disables the prober. The probe shares the round-trip lock
	// with application commands: it interleaves between them, never
	// concurrently with them.
	HealthInterval time.Duration

	// Probe is the wire line sent as the health probe. Defaults to the
	// position query, the cheapest idempotent command.
	Probe string

	// Logger receives connection lifecycle and failure logs. Nil
	// discards.
	Logger *slog.Logger

	// Clock drives reconnect delays and the health ticker. Nil uses
	// the real clock. Tests inject clock.Fake.
	Clock clock.Clock

	// Registerer receives the transport's prometheus collectors. Nil
	// leaves them unregistered.
	Registerer prometheus.Registerer
}

// ProbeRecord is the outcome of the most recent health probe.
type ProbeRecord struct {
	// Time is when the probe finished.
	Time time.Time
	// OK reports whether the probe round trip succeeded.
	OK bool
	// Status is the reply line on success, the error text on failure.
	Status string
}

// Transport owns the single TCP connection to the instrument and
// serializes every round trip on it. Safe for concurrent use; see the
// package documentation for the locking rationale.
type Transport struct {
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
	metrics *metrics

	// mu is the round-trip lock. It guards conn and reader and is held
	// for every complete write+read exchange, every state-changing
	// connection operation, and the whole reconnection sequence.
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	stateMu sync.Mutex
	state   State

	probeMu   sync.Mutex
	lastProbe *ProbeRecord

	healthStop chan struct{}
	healthDone chan struct{}
	closeOnce  sync.Once
}

// New creates a Transport. It does not dial; call Connect. The health
// prober starts with the first successful Connect and runs until
// Close.
func New(cfg Config) (*Transport, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("transport: Address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Reconnect.Enabled {
		if cfg.Reconnect.MaxAttempts <= 0 {
			cfg.Reconnect.MaxAttempts = DefaultMaxAttempts
		}
		if cfg.Reconnect.Delay <= 0 {
			cfg.Reconnect.Delay = DefaultReconnectDelay
		}
	}
	if cfg.Probe == "" {
		cfg.Probe = protocol.PositionRequest().Encode()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	t := &Transport{
		config:     cfg,
		logger:     cfg.Logger.With("instrument", cfg.Address),
		clock:      cfg.Clock,
		metrics:    newMetrics(cfg.Registerer),
		state:      Disconnected,
		healthStop: make(chan struct{}),
		healthDone: make(chan struct{}),
	}
	if cfg.HealthInterval > 0 {
		go t.healthLoop()
	} else {
		close(t.healthDone)
	}
	return t, nil
}

// State returns the connection lifecycle state.
func (t *Transport) State() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

func (t *Transport) setState(s State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
}

// LastProbe returns the most recent health probe outcome, if any probe
// has run.
func (t *Transport) LastProbe() (ProbeRecord, bool) {
	t.probeMu.Lock()
	defer t.probeMu.Unlock()
	if t.lastProbe == nil {
		return ProbeRecord{}, false
	}
	return *t.lastProbe, true
}

// Connect opens the connection. No-op when already connected. A failed
// dial leaves the transport Disconnected and returns *ConnectionError.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	t.setState(Connecting)
	conn, err := t.dial(ctx)
	if err != nil {
		t.setState(Disconnected)
		return &ConnectionError{Address: t.config.Address, Attempts: 1, Err: err}
	}
	t.attachLocked(conn)
	t.logger.Info("connected")
	return nil
}

// Disconnect closes the connection. No-op when already disconnected;
// always safe to call.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return
	}
	t.teardownLocked()
	t.setState(Disconnected)
	t.logger.Info("disconnected")
}

// Close disconnects and stops the health prober. The Transport must
// not be used afterwards.
func (t *Transport) Close() {
	t.closeOnce.Do(func() { close(t.healthStop) })
	<-t.healthDone
	t.Disconnect()
}

// Send writes one wire line and returns the single reply line, holding
// the round-trip lock for the whole exchange. A non-positive timeout
// uses the configured ReadTimeout.
//
// On I/O failure with reconnection enabled, the transport redials up
// to MaxAttempts times separated by Delay and then retries the command
// exactly once; with reconnection disabled, the failure surfaces
// immediately. ERR replies from the instrument are returned as the
// reply text, not as errors — the channel worked, the hardware
// refused.
func (t *Transport) Send(ctx context.Context, line string, timeout time.Duration) (string, error) {
	return t.send(ctx, line, timeout, true)
}

// SendShutdown sends a distinguished final command that is never
// retried: once the instrument acknowledges it the channel is gone, so
// on success the transport transitions to Disconnected.
func (t *Transport) SendShutdown(ctx context.Context, line string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = t.config.ReadTimeout
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t.conn == nil {
		return "", &ConnectionError{Address: t.config.Address}
	}

	reply, err := t.roundTripLocked(line, timeout)
	if err != nil {
		return "", err
	}
	t.teardownLocked()
	t.setState(Disconnected)
	t.logger.Info("shutdown acknowledged")
	return reply, nil
}

func (t *Transport) send(ctx context.Context, line string, timeout time.Duration, allowReconnect bool) (string, error) {
	if timeout <= 0 {
		timeout = t.config.ReadTimeout
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	reconnect := allowReconnect && t.config.Reconnect.Enabled

	if t.conn == nil {
		if !reconnect {
			return "", &ConnectionError{Address: t.config.Address}
		}
		if err := t.reconnectLocked(ctx); err != nil {
			return "", err
		}
		// Fresh connection: one attempt, no second reconnect cycle.
		return t.roundTripLocked(line, timeout)
	}

	reply, err := t.roundTripLocked(line, timeout)
	if err == nil {
		return reply, nil
	}
	if !reconnect {
		return "", err
	}

	t.logger.Warn("round trip failed, reconnecting", "error", err)
	if reconnectErr := t.reconnectLocked(ctx); reconnectErr != nil {
		return "", reconnectErr
	}

	// Retry the original command exactly once on the new connection.
	return t.roundTripLocked(line, timeout)
}

// roundTripLocked performs one write+read exchange. The caller holds
// mu and t.conn is non-nil. On any I/O failure the connection is torn
// down: a half-finished exchange leaves unread bytes that would pair
// the next caller's request with this one's reply.
func (t *Transport) roundTripLocked(line string, timeout time.Duration) (string, error) {
	started := t.clock.Now()
	deadline := time.Now().Add(timeout)
	if err := t.conn.SetDeadline(deadline); err != nil {
		t.teardownLocked()
		t.setState(Failed)
		t.metrics.roundTrips.WithLabelValues("error").Inc()
		return "", &ConnectionError{Address: t.config.Address, Err: err}
	}

	if _, err := t.conn.Write([]byte(line + "\n")); err != nil {
		return "", t.failLocked(err, timeout)
	}

	reply, err := t.reader.ReadString('\n')
	if err != nil {
		return "", t.failLocked(err, timeout)
	}
	t.conn.SetDeadline(time.Time{})

	t.metrics.roundTrips.WithLabelValues("ok").Inc()
	t.metrics.duration.Observe(t.clock.Now().Sub(started).Seconds())
	return strings.TrimRight(reply, "\r\n"), nil
}

// failLocked tears down the connection after an I/O failure and wraps
// the error: deadline expiries become *TimeoutError, everything else
// *ConnectionError.
func (t *Transport) failLocked(err error, timeout time.Duration) error {
	t.teardownLocked()
	t.setState(Failed)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.metrics.roundTrips.WithLabelValues("timeout").Inc()
		return &TimeoutError{Timeout: timeout, Err: err}
	}
	t.metrics.roundTrips.WithLabelValues("error").Inc()
	return &ConnectionError{Address: t.config.Address, Err: err}
}

// reconnectLocked redials up to MaxAttempts times separated by Delay.
// The caller holds mu, so no round trip can slip in while the
// connection is being replaced.
func (t *Transport) reconnectLocked(ctx context.Context) error {
	t.setState(Reconnecting)
	policy := t.config.Reconnect

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			t.setState(Failed)
			return err
		}

		conn, err := t.dial(ctx)
		if err == nil {
			t.attachLocked(conn)
			t.metrics.reconnects.Inc()
			t.logger.Info("reconnected", "attempt", attempt)
			return nil
		}
		lastErr = err
		t.logger.Warn("reconnect attempt failed",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", err,
		)

		if attempt < policy.MaxAttempts {
			t.clock.Sleep(policy.Delay)
		}
	}

	t.setState(Failed)
	return &ConnectionError{Address: t.config.Address, Attempts: policy.MaxAttempts, Err: lastErr}
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	return (&net.Dialer{Timeout: t.config.DialTimeout}).DialContext(ctx, "tcp", t.config.Address)
}

func (t *Transport) attachLocked(conn net.Conn) {
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.setState(Connected)
}

func (t *Transport) teardownLocked() {
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
		t.reader = nil
	}
}

// healthLoop sends the probe on every tick while connected. The probe
// goes through Send and therefore queues on the round-trip lock behind
// any in-flight command; a failed probe triggers the same reconnection
// sequence as any failed Send.
func (t *Transport) healthLoop() {
	defer close(t.healthDone)

	ticker := t.clock.NewTicker(t.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.healthStop:
			return
		case <-ticker.C:
			if t.State() != Connected {
				continue
			}
			t.probe()
		}
	}
}

func (t *Transport) probe() {
	reply, err := t.Send(context.Background(), t.config.Probe, t.config.ReadTimeout)

	record := &ProbeRecord{Time: t.clock.Now(), OK: err == nil, Status: reply}
	if err != nil {
		record.Status = err.Error()
		t.metrics.probeFailures.Inc()
		if !netutil.IsExpectedCloseError(err) {
			t.logger.Warn("health probe failed", "error", err)
		}
	}

	t.probeMu.Lock()
	t.lastProbe = record
	t.probeMu.Unlock()
}
