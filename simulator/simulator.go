// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/microscint/scopelink/lib/netutil"
	"github.com/microscint/scopelink/protocol"
)

// Config tunes the simulated instrument.
type Config struct {
	// Listen is the TCP address to bind, ":0" for an ephemeral port.
	Listen string

	// TotalTiles is the tile count of a simulated scan. Default 10.
	TotalTiles int

	// AdvancePerPoll is how many tiles complete per status poll.
	// Default 1.
	AdvancePerPoll int

	// FocusRequestAtTile raises a manual focus request when the scan
	// reaches this tile; the scan holds at waiting-focus until a
	// skip-focus or confirm-focus command arrives. Zero disables.
	FocusRequestAtTile int

	// FailAtTile fails the scan with a hardware error when it reaches
	// this tile. Zero disables.
	FailAtTile int

	// ErrorReplies maps a command verb to an ERR message, simulating
	// hardware faults for specific commands.
	ErrorReplies map[string]string

	// ResponseDelay is a pause before every reply, for exercising read
	// timeouts.
	ResponseDelay time.Duration

	// FailEveryNth drops the connection before replying on every Nth
	// request (counting across connections), simulating a crashing
	// peer. Zero disables.
	FailEveryNth int

	// Logger receives connection and command logs. Nil discards.
	Logger *slog.Logger
}

// Simulator is an in-process microscope server speaking the control
// protocol. It simulates the stage, one scan at a time, and the manual
// focus handshake. Tests and the scopelink-sim binary embed it.
type Simulator struct {
	config   Config
	logger   *slog.Logger
	listener net.Listener

	wg sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	conns    map[net.Conn]struct{}
	requests int // total requests served, for FailEveryNth

	// stage state, in micrometers (degrees for rotation)
	x, y, z, rotation float64

	scan scanState
}

// scanState tracks the simulated acquisition.
type scanState struct {
	active       bool
	status       string
	tile         int
	total        int
	message      string
	focusPending bool
}

// Start binds the listener and begins serving connections.
func Start(config Config) (*Simulator, error) {
	if config.Listen == "" {
		config.Listen = "127.0.0.1:0"
	}
	if config.TotalTiles <= 0 {
		config.TotalTiles = 10
	}
	if config.AdvancePerPoll <= 0 {
		config.AdvancePerPoll = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	listener, err := net.Listen("tcp", config.Listen)
	if err != nil {
		return nil, fmt.Errorf("simulator: listen %s: %w", config.Listen, err)
	}

	s := &Simulator{
		config:   config,
		logger:   logger,
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("simulator listening", "address", listener.Addr().String())
	return s, nil
}

// Addr returns the bound listen address in host:port form.
func (s *Simulator) Addr() string {
	return s.listener.Addr().String()
}

// Close stops the listener, severs every active connection, and waits
// for connection handlers to exit.
func (s *Simulator) Close() {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.listener.Close()
	s.wg.Wait()
}

// SetPosition seeds the simulated stage position.
func (s *Simulator) SetPosition(x, y, z, rotation float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.x, s.y, s.z, s.rotation = x, y, z, rotation
}

// Requests returns the total number of requests served.
func (s *Simulator) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Simulator) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && !netutil.IsExpectedCloseError(err) {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn handles one connection: a line-per-request loop. The
// protocol is strictly half duplex — exactly one reply line per request
// line, in order.
func (s *Simulator) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()

		s.mu.Lock()
		s.requests++
		dropConn := s.config.FailEveryNth > 0 && s.requests%s.config.FailEveryNth == 0
		s.mu.Unlock()

		if dropConn {
			s.logger.Info("dropping connection by fault injection", "request", line)
			return
		}

		if s.config.ResponseDelay > 0 {
			time.Sleep(s.config.ResponseDelay)
		}

		reply := s.handle(line)
		if _, err := fmt.Fprintf(conn, "%s\n", reply); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				s.logger.Error("write failed", "error", err)
			}
			return
		}

		if strings.HasPrefix(line, "--cmd shutdown") && strings.HasPrefix(reply, "OK") {
			s.logger.Info("shutdown acknowledged, closing connection")
			return
		}
	}
}

// handle decodes one request line and produces the reply line.
func (s *Simulator) handle(line string) string {
	request, err := protocol.ParseRequest(line)
	if err != nil {
		return "ERR " + err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if message, ok := s.config.ErrorReplies[request.Verb()]; ok {
		return "ERR " + message
	}

	switch request.Verb() {
	case protocol.VerbGetPosition:
		return s.handleGetPosition(request)
	case protocol.VerbMoveStage:
		return s.handleMoveStage(request)
	case protocol.VerbStartScan, protocol.VerbStartBackground:
		return s.handleStartScan(request)
	case protocol.VerbScanStatus:
		return s.handleScanStatus()
	case protocol.VerbSkipFocus, protocol.VerbConfirmFocus:
		return s.handleFocusAnswer(request)
	case protocol.VerbStopScan:
		return s.handleStopScan()
	case protocol.VerbCalibrateWhiteBalance:
		return "OK"
	case protocol.VerbShutdown:
		return "OK"
	case protocol.VerbEcho:
		tag, err := request.Value("tag")
		if err != nil {
			return "ERR echo requires a tag"
		}
		return "OK tag=" + quoteValue(tag)
	}
	return fmt.Sprintf("ERR unknown command %q", request.Verb())
}

func (s *Simulator) handleGetPosition(request *protocol.Request) string {
	if request.Has("axis") {
		axis, _ := request.Value("axis")
		switch protocol.Axis(axis) {
		case protocol.AxisX:
			return fmt.Sprintf("OK x=%v", s.x)
		case protocol.AxisY:
			return fmt.Sprintf("OK y=%v", s.y)
		case protocol.AxisZ:
			return fmt.Sprintf("OK z=%v", s.z)
		case protocol.AxisRotation:
			return fmt.Sprintf("OK rotation=%v", s.rotation)
		}
		return fmt.Sprintf("ERR unknown axis %q", axis)
	}
	return fmt.Sprintf("OK x=%v y=%v", s.x, s.y)
}

func (s *Simulator) handleMoveStage(request *protocol.Request) string {
	axis, err := request.Value("axis")
	if err != nil {
		return "ERR move-stage requires an axis"
	}
	target, err := request.Float("target")
	if err != nil {
		return "ERR move-stage requires a numeric target"
	}
	switch protocol.Axis(axis) {
	case protocol.AxisX:
		s.x = target
	case protocol.AxisY:
		s.y = target
	case protocol.AxisZ:
		s.z = target
	case protocol.AxisRotation:
		s.rotation = target
	default:
		return fmt.Sprintf("ERR unknown axis %q", axis)
	}
	return "OK"
}

func (s *Simulator) handleStartScan(request *protocol.Request) string {
	if s.scan.active {
		return "ERR a scan is already running"
	}
	for _, required := range []string{"scan-type", "output", "sample", "slide", "region"} {
		if !request.Has(required) {
			return fmt.Sprintf("ERR missing required field --%s", required)
		}
	}
	s.scan = scanState{
		active: true,
		status: protocol.StateQueued,
		total:  s.config.TotalTiles,
	}
	s.logger.Info("scan started", "total_tiles", s.scan.total)
	return "OK"
}

// handleScanStatus reports the scan state and then advances the
// simulation: each poll is a tick of scan progress, which keeps tests
// deterministic without a background clock.
func (s *Simulator) handleScanStatus() string {
	if !s.scan.active && s.scan.status == "" {
		return "ERR no scan started"
	}

	reply := s.statusReply()

	if s.scan.active && !s.scan.focusPending {
		s.advanceScan()
	}
	return reply
}

func (s *Simulator) statusReply() string {
	var b strings.Builder
	b.WriteString("OK status=")
	b.WriteString(s.scan.status)
	if s.scan.total > 0 && s.scan.status != protocol.StateQueued {
		fmt.Fprintf(&b, " tile=%d/%d", s.scan.tile, s.scan.total)
	}
	if s.scan.message != "" {
		b.WriteString(" error=")
		b.WriteString(quoteValue(s.scan.message))
	}
	return b.String()
}

// advanceScan moves the simulated acquisition forward one poll tick.
func (s *Simulator) advanceScan() {
	switch s.scan.status {
	case protocol.StateQueued:
		s.scan.status = protocol.StateRunning
	case protocol.StateRunning:
		s.scan.tile += s.config.AdvancePerPoll
		if s.config.FailAtTile > 0 && s.scan.tile >= s.config.FailAtTile {
			s.scan.tile = s.config.FailAtTile
			s.scan.status = protocol.StateFailed
			s.scan.message = "stage fault: tile acquisition failed"
			s.scan.active = false
			return
		}
		if s.config.FocusRequestAtTile > 0 && s.scan.tile >= s.config.FocusRequestAtTile && !s.scan.focusPending {
			s.scan.tile = s.config.FocusRequestAtTile
			s.scan.status = protocol.StateWaitingFocus
			s.scan.focusPending = true
			return
		}
		if s.scan.tile >= s.scan.total {
			s.scan.tile = s.scan.total
			s.scan.status = protocol.StateComplete
			s.scan.active = false
		}
	}
}

// handleFocusAnswer resumes a scan held at waiting-focus. A confirmed
// focus also moves the simulated Z stage.
func (s *Simulator) handleFocusAnswer(request *protocol.Request) string {
	if !s.scan.focusPending {
		return "ERR no manual focus request pending"
	}
	if request.Verb() == protocol.VerbConfirmFocus {
		z, err := request.Float("z")
		if err != nil {
			return "ERR confirm-focus requires a numeric z"
		}
		s.z = z
	}
	s.scan.focusPending = false
	s.scan.status = protocol.StateRunning
	// The focus tile is done once answered; clear the trigger so the
	// scan does not immediately re-request focus.
	s.config.FocusRequestAtTile = 0
	return "OK"
}

func (s *Simulator) handleStopScan() string {
	if !s.scan.active {
		return "ERR no scan running"
	}
	s.scan.status = protocol.StateCancelled
	s.scan.active = false
	s.scan.focusPending = false
	return "OK"
}

// quoteValue quotes a reply payload value when it contains spaces or
// quotes, matching the request token quoting rule.
func quoteValue(value string) string {
	if !strings.ContainsAny(value, " \"\\") && value != "" {
		return value
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range value {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
