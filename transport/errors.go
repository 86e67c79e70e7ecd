// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"time"
)

// ConnectionError reports that the connection could not be established
// or re-established within the configured attempt budget. Callers can
// use errors.As to extract the structured information:
//
//	var connErr *transport.ConnectionError
//	if errors.As(err, &connErr) {
//	    log.Warn("instrument unreachable", "attempts", connErr.Attempts)
//	}
type ConnectionError struct {
	// Address is the instrument address that failed.
	Address string
	// Attempts is how many dials were made before giving up. Zero
	// means no dial was attempted (reconnection disabled).
	Attempts int
	// Err is the final underlying failure, when one exists.
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport: not connected to %s", e.Address)
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("transport: connection to %s failed after %d attempts: %v", e.Address, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transport: connection to %s failed: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports a round trip that exceeded its read timeout.
// The connection is torn down when this happens: an unread late reply
// would desynchronize every subsequent round trip.
type TimeoutError struct {
	// Timeout is the deadline that elapsed.
	Timeout time.Duration
	// Err is the underlying deadline error.
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transport: no response within %v: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is (or wraps) a *ConnectionError.
func IsConnectionError(err error) bool {
	var connectionErr *ConnectionError
	return errors.As(err, &connectionErr)
}

// IsTimeoutError reports whether err is (or wraps) a *TimeoutError.
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}
