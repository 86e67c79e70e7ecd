// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/microscint/scopelink/lib/clock"
	"github.com/microscint/scopelink/protocol"
	"github.com/microscint/scopelink/simulator"
	"github.com/microscint/scopelink/transport"
)

func startSimulator(t *testing.T, cfg simulator.Config) *simulator.Simulator {
	t.Helper()
	sim, err := simulator.Start(cfg)
	if err != nil {
		t.Fatalf("starting simulator: %v", err)
	}
	t.Cleanup(sim.Close)
	return sim
}

func newTransport(t *testing.T, cfg transport.Config) *transport.Transport {
	t.Helper()
	tr, err := transport.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(tr.Close)
	return tr
}

func TestConnectAndQueryPosition(t *testing.T) {
	sim := startSimulator(t, simulator.Config{})
	sim.SetPosition(100.5, 200.7, 50.0, 0.0)

	tr := newTransport(t, transport.Config{Address: sim.Addr()})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if tr.State() != transport.Connected {
		t.Errorf("State = %v, want Connected", tr.State())
	}

	// Idempotent: connecting again is a no-op.
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	line, err := tr.Send(context.Background(), protocol.PositionRequest().Encode(), 0)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	reply, err := protocol.ParseReply(line)
	if err != nil {
		t.Fatalf("ParseReply(%q): %v", line, err)
	}
	position, err := protocol.ParsePosition(reply)
	if err != nil {
		t.Fatalf("ParsePosition: %v", err)
	}
	if position.X != 100.5 || position.Y != 200.7 {
		t.Errorf("position = %+v, want x=100.5 y=200.7", position)
	}

	for axis, want := range map[protocol.Axis]float64{
		protocol.AxisZ:        50.0,
		protocol.AxisRotation: 0.0,
	} {
		line, err := tr.Send(context.Background(), protocol.AxisPositionRequest(axis).Encode(), 0)
		if err != nil {
			t.Fatalf("Send(%s): %v", axis, err)
		}
		reply, err := protocol.ParseReply(line)
		if err != nil {
			t.Fatalf("ParseReply(%q): %v", line, err)
		}
		got, err := reply.Float(string(axis))
		if err != nil {
			t.Fatalf("Float(%s): %v", axis, err)
		}
		if got != want {
			t.Errorf("%s = %v, want %v", axis, got, want)
		}
	}
}

// TestNoCrossTalk hammers one connection from many goroutines. Every
// echo reply must carry the tag of the request that produced it; any
// interleaving of round trips on the shared socket would mispair them.
func TestNoCrossTalk(t *testing.T) {
	sim := startSimulator(t, simulator.Config{})
	tr := newTransport(t, transport.Config{Address: sim.Addr()})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	const callers = 8
	const callsPerCaller = 25

	var wg sync.WaitGroup
	errs := make(chan error, callers*callsPerCaller)
	for caller := 0; caller < callers; caller++ {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			for call := 0; call < callsPerCaller; call++ {
				tag := fmt.Sprintf("caller%d-call%d", caller, call)
				line, err := tr.Send(context.Background(), protocol.EchoRequest(tag).Encode(), 0)
				if err != nil {
					errs <- fmt.Errorf("%s: %w", tag, err)
					return
				}
				reply, err := protocol.ParseReply(line)
				if err != nil {
					errs <- fmt.Errorf("%s: %w", tag, err)
					return
				}
				if got, _ := reply.Get("tag"); got != tag {
					errs <- fmt.Errorf("reply tag %q for request %q: responses crossed", got, tag)
					return
				}
			}
		}(caller)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// TestReconnectAfterPeerRestart stops the simulated instrument and
// restarts it on the same address; the next send must transparently
// reconnect and succeed.
func TestReconnectAfterPeerRestart(t *testing.T) {
	first, err := simulator.Start(simulator.Config{})
	if err != nil {
		t.Fatalf("starting simulator: %v", err)
	}
	address := first.Addr()

	tr := newTransport(t, transport.Config{
		Address: address,
		Reconnect: transport.ReconnectPolicy{
			Enabled:     true,
			MaxAttempts: 5,
			Delay:       20 * time.Millisecond,
		},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := tr.Send(context.Background(), protocol.EchoRequest("before").Encode(), 0); err != nil {
		t.Fatalf("Send before restart: %v", err)
	}

	first.Close()
	second := startSimulator(t, simulator.Config{Listen: address})
	_ = second

	line, err := tr.Send(context.Background(), protocol.EchoRequest("after").Encode(), 0)
	if err != nil {
		t.Fatalf("Send after restart: %v", err)
	}
	if !strings.Contains(line, "tag=after") {
		t.Errorf("reply = %q, want echo of %q", line, "after")
	}
	if tr.State() != transport.Connected {
		t.Errorf("State = %v, want Connected", tr.State())
	}
}

func TestSendDisconnectedWithoutReconnect(t *testing.T) {
	tr := newTransport(t, transport.Config{Address: "127.0.0.1:1"})

	_, err := tr.Send(context.Background(), protocol.PositionRequest().Encode(), 0)
	if !transport.IsConnectionError(err) {
		t.Fatalf("Send = %v, want *ConnectionError", err)
	}
	var connectionErr *transport.ConnectionError
	if !errors.As(err, &connectionErr) {
		t.Fatalf("Send = %v, want *ConnectionError", err)
	}
	if connectionErr.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0 (no dial may happen with reconnection disabled)", connectionErr.Attempts)
	}
}

func TestReadTimeout(t *testing.T) {
	sim := startSimulator(t, simulator.Config{ResponseDelay: 300 * time.Millisecond})
	tr := newTransport(t, transport.Config{Address: sim.Addr()})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := tr.Send(context.Background(), protocol.PositionRequest().Encode(), 30*time.Millisecond)
	if !transport.IsTimeoutError(err) {
		t.Fatalf("Send = %v, want *TimeoutError", err)
	}
	if tr.State() != transport.Failed {
		t.Errorf("State = %v, want Failed after timeout with reconnection disabled", tr.State())
	}
}

// TestHardwareErrorPassthrough verifies that an ERR reply is returned
// verbatim as the response line, not retried and not turned into a
// transport error: the channel worked, the hardware refused.
func TestHardwareErrorPassthrough(t *testing.T) {
	sim := startSimulator(t, simulator.Config{
		ErrorReplies: map[string]string{protocol.VerbMoveStage: "stage not initialized"},
	})
	tr := newTransport(t, transport.Config{
		Address:   sim.Addr(),
		Reconnect: transport.ReconnectPolicy{Enabled: true},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	line, err := tr.Send(context.Background(), protocol.MoveRequest(protocol.AxisX, 10).Encode(), 0)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if line != "ERR stage not initialized" {
		t.Errorf("reply = %q, want verbatim ERR line", line)
	}
	if got := sim.Requests(); got != 1 {
		t.Errorf("simulator served %d requests, want 1 (ERR must not be retried)", got)
	}

	_, err = protocol.ParseReply(line)
	if !protocol.IsHardwareError(err) {
		t.Errorf("ParseReply error = %v, want *HardwareError", err)
	}
}

func TestShutdownIsNeverRetried(t *testing.T) {
	sim := startSimulator(t, simulator.Config{})
	tr := newTransport(t, transport.Config{
		Address:   sim.Addr(),
		Reconnect: transport.ReconnectPolicy{Enabled: true},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := tr.SendShutdown(context.Background(), protocol.ShutdownRequest().Encode(), 0); err != nil {
		t.Fatalf("SendShutdown: %v", err)
	}
	if tr.State() != transport.Disconnected {
		t.Errorf("State = %v, want Disconnected after shutdown", tr.State())
	}

	// The channel is gone; a followup shutdown must fail immediately
	// rather than redialing a server that was told to exit.
	if _, err := tr.SendShutdown(context.Background(), protocol.ShutdownRequest().Encode(), 0); !transport.IsConnectionError(err) {
		t.Errorf("second SendShutdown = %v, want *ConnectionError", err)
	}
}

// TestIntermittentFailures drops the connection on every second
// request with reconnection disabled, reconnecting manually. Both
// outcomes must occur, and a failure must never wedge the transport.
func TestIntermittentFailures(t *testing.T) {
	sim := startSimulator(t, simulator.Config{FailEveryNth: 2})
	tr := newTransport(t, transport.Config{Address: sim.Addr()})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var successes, failures int
	for i := 0; i < 10; i++ {
		tag := fmt.Sprintf("call%d", i)
		line, err := tr.Send(context.Background(), protocol.EchoRequest(tag).Encode(), time.Second)
		if err != nil {
			failures++
			if connectErr := tr.Connect(context.Background()); connectErr != nil {
				t.Fatalf("re-Connect after failure %d: %v", i, connectErr)
			}
			continue
		}
		successes++
		if !strings.Contains(line, "tag="+tag) {
			t.Errorf("reply %q does not match request %q after failures", line, tag)
		}
	}
	if successes == 0 || failures == 0 {
		t.Errorf("successes = %d, failures = %d, want both non-zero", successes, failures)
	}
}

// TestRetriesTransparentlyWithReconnectEnabled is the same fault
// pattern with the reconnection policy on: every send must succeed,
// with the transport absorbing each dropped connection.
func TestRetriesTransparentlyWithReconnectEnabled(t *testing.T) {
	sim := startSimulator(t, simulator.Config{FailEveryNth: 3})
	tr := newTransport(t, transport.Config{
		Address: sim.Addr(),
		Reconnect: transport.ReconnectPolicy{
			Enabled:     true,
			MaxAttempts: 3,
			Delay:       10 * time.Millisecond,
		},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	for i := 0; i < 10; i++ {
		tag := fmt.Sprintf("call%d", i)
		line, err := tr.Send(context.Background(), protocol.EchoRequest(tag).Encode(), time.Second)
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if !strings.Contains(line, "tag="+tag) {
			t.Errorf("reply %q does not match request %q", line, tag)
		}
	}
	if got := sim.Requests(); got <= 10 {
		t.Errorf("simulator served %d requests, want >10 (retries must have happened)", got)
	}
}

// TestHealthProbeRunsAndRecovers drives the health ticker with a fake
// clock: the probe must run through the shared round-trip path, record
// its outcome, and trigger reconnection when the peer has gone away.
func TestHealthProbeRunsAndRecovers(t *testing.T) {
	sim, err := simulator.Start(simulator.Config{})
	if err != nil {
		t.Fatalf("starting simulator: %v", err)
	}
	address := sim.Addr()

	fakeClock := clock.Fake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	tr := newTransport(t, transport.Config{
		Address:        address,
		HealthInterval: 30 * time.Second,
		Reconnect: transport.ReconnectPolicy{
			Enabled:     true,
			MaxAttempts: 3,
			Delay:       time.Second,
		},
		Clock: fakeClock,
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// The health loop registers its ticker on startup.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(30 * time.Second)
	waitForProbe(t, tr, true)

	// Kill the peer and restart it on the same address. The next
	// probe fails mid-round-trip and the reconnect policy restores
	// the connection.
	sim.Close()
	replacement := startSimulator(t, simulator.Config{Listen: address})
	_ = replacement

	fakeClock.Advance(30 * time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if tr.State() == transport.Connected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if tr.State() != transport.Connected {
		t.Fatalf("State = %v, want Connected after probe-driven reconnect", tr.State())
	}

	if _, err := tr.Send(context.Background(), protocol.EchoRequest("alive").Encode(), 0); err != nil {
		t.Errorf("Send after probe recovery: %v", err)
	}
}

func waitForProbe(t *testing.T, tr *transport.Transport, wantOK bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if record, ok := tr.LastProbe(); ok {
			if record.OK != wantOK {
				t.Fatalf("probe OK = %v, want %v (status %q)", record.OK, wantOK, record.Status)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a health probe to run")
}
