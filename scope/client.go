// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package scope

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/microscint/scopelink/acquisition"
	"github.com/microscint/scopelink/lib/clock"
	"github.com/microscint/scopelink/protocol"
	"github.com/microscint/scopelink/transport"
)

// Default per-command read timeouts. Calibration moves filters and
// averages frames, so it gets a budget far above ordinary commands.
const (
	DefaultCommandTimeout     = 10 * time.Second
	DefaultCalibrationTimeout = 2 * time.Minute
)

// Config holds the parameters for a Client. Transport is required.
type Config struct {
	// Transport is the connected (or connectable) control channel.
	Transport *transport.Transport

	// CommandTimeout is the read timeout for ordinary commands.
	CommandTimeout time.Duration

	// CalibrationTimeout is the read timeout for calibration commands.
	CalibrationTimeout time.Duration

	// Logger receives command logs. Nil discards.
	Logger *slog.Logger

	// Clock paces acquisition monitors. Nil uses the real clock.
	Clock clock.Clock
}

// MonitorOptions tunes the monitor attached to a started acquisition.
// The zero value uses the package defaults, including auto-skip for
// manual focus requests.
type MonitorOptions struct {
	PollInterval time.Duration
	FocusTimeout time.Duration
	Focus        acquisition.FocusHandler
	OnProgress   func(acquisition.Progress, time.Duration)
	OnTransition func(acquisition.Snapshot)
}

// Client exposes the instrument's operations as typed methods. Safe
// for concurrent use; the transport serializes the round trips.
type Client struct {
	transport *transport.Transport
	config    Config
	logger    *slog.Logger
	clock     clock.Clock
}

// New creates a Client over an existing transport.
func New(cfg Config) (*Client, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("scope: Transport is required")
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.CalibrationTimeout <= 0 {
		cfg.CalibrationTimeout = DefaultCalibrationTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Client{
		transport: cfg.Transport,
		config:    cfg,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}, nil
}

// Connect opens the control channel. No-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Close tears down the control channel and its health prober.
func (c *Client) Close() {
	c.transport.Close()
}

// State returns the transport's connection state.
func (c *Client) State() transport.State {
	return c.transport.State()
}

// roundTrip sends a request and returns the parsed reply. An ERR reply
// surfaces as *protocol.HardwareError.
func (c *Client) roundTrip(ctx context.Context, request *protocol.Request, timeout time.Duration) (*protocol.Reply, error) {
	line, err := c.transport.Send(ctx, request.Encode(), timeout)
	if err != nil {
		return nil, err
	}
	return protocol.ParseReply(line)
}

// Position returns the planar stage position.
func (c *Client) Position(ctx context.Context) (protocol.Position, error) {
	reply, err := c.roundTrip(ctx, protocol.PositionRequest(), c.config.CommandTimeout)
	if err != nil {
		return protocol.Position{}, err
	}
	return protocol.ParsePosition(reply)
}

// AxisPosition returns the position of a single axis.
func (c *Client) AxisPosition(ctx context.Context, axis protocol.Axis) (float64, error) {
	reply, err := c.roundTrip(ctx, protocol.AxisPositionRequest(axis), c.config.CommandTimeout)
	if err != nil {
		return 0, err
	}
	return reply.Float(string(axis))
}

// ZPosition returns the focus axis position in micrometers.
func (c *Client) ZPosition(ctx context.Context) (float64, error) {
	return c.AxisPosition(ctx, protocol.AxisZ)
}

// Rotation returns the stage rotation in degrees.
func (c *Client) Rotation(ctx context.Context) (float64, error) {
	return c.AxisPosition(ctx, protocol.AxisRotation)
}

// MoveAxis moves one axis to an absolute target in micrometers
// (degrees for the rotation axis).
func (c *Client) MoveAxis(ctx context.Context, axis protocol.Axis, target float64) error {
	c.logger.Info("moving stage", "axis", axis, "target", target)
	_, err := c.roundTrip(ctx, protocol.MoveRequest(axis, target), c.config.CommandTimeout)
	return err
}

// StartAcquisition validates the parameters, sends the start command,
// and returns the monitor driving the new scan. Validation failures
// surface as *protocol.ValidationError before anything touches the
// wire; an instrument refusal surfaces as *protocol.HardwareError.
func (c *Client) StartAcquisition(ctx context.Context, params protocol.AcquisitionParams, opts MonitorOptions) (*acquisition.Monitor, error) {
	scan, err := protocol.NewAcquisition(params)
	if err != nil {
		return nil, err
	}
	c.logger.Info("starting acquisition",
		"scan_type", scan.ScanType(),
		"sample", params.SampleID,
		"region", params.Region,
	)
	if _, err := c.roundTrip(ctx, scan.StartRequest(), c.config.CommandTimeout); err != nil {
		return nil, err
	}
	return acquisition.StartMonitor(ctx, acquisition.Config{
		Sender:        c.transport,
		PollInterval:  opts.PollInterval,
		StatusTimeout: c.config.CommandTimeout,
		FocusTimeout:  opts.FocusTimeout,
		Focus:         opts.Focus,
		OnProgress:    opts.OnProgress,
		OnTransition:  opts.OnTransition,
		Logger:        c.config.Logger,
		Clock:         c.clock,
	})
}

// StartBackground acquires a background reference for flat-field
// correction. Synchronous: the instrument acknowledges when the
// reference is stored.
func (c *Client) StartBackground(ctx context.Context, params protocol.AcquisitionParams) error {
	scan, err := protocol.NewAcquisition(params)
	if err != nil {
		return err
	}
	c.logger.Info("acquiring background reference", "scan_type", scan.ScanType())
	_, err = c.roundTrip(ctx, scan.BackgroundRequest(), c.config.CalibrationTimeout)
	return err
}

// SkipFocus answers a pending manual focus request with a skip. Used
// by operators driving a scan from outside the monitor's handler.
func (c *Client) SkipFocus(ctx context.Context) error {
	_, err := c.roundTrip(ctx, protocol.SkipFocusRequest(), c.config.CommandTimeout)
	return err
}

// ConfirmFocus answers a pending manual focus request with an explicit
// focal plane in micrometers.
func (c *Client) ConfirmFocus(ctx context.Context, zMicrons float64) error {
	_, err := c.roundTrip(ctx, protocol.ConfirmFocusRequest(zMicrons), c.config.CommandTimeout)
	return err
}

// StopScan aborts the running scan.
func (c *Client) StopScan(ctx context.Context) error {
	_, err := c.roundTrip(ctx, protocol.StopRequest(), c.config.CommandTimeout)
	return err
}

// CalibrateWhiteBalance runs the white-balance calibration routine.
func (c *Client) CalibrateWhiteBalance(ctx context.Context) error {
	c.logger.Info("calibrating white balance", "timeout", c.config.CalibrationTimeout)
	_, err := c.roundTrip(ctx, protocol.CalibrateWhiteBalanceRequest(), c.config.CalibrationTimeout)
	return err
}

// Shutdown asks the instrument process to exit. Never retried: on
// success the transport is Disconnected, on failure the caller decides.
func (c *Client) Shutdown(ctx context.Context) error {
	c.logger.Info("shutting down instrument")
	line, err := c.transport.SendShutdown(ctx, protocol.ShutdownRequest().Encode(), c.config.CommandTimeout)
	if err != nil {
		return err
	}
	_, err = protocol.ParseReply(line)
	return err
}
