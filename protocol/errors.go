// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports an acquisition descriptor that is missing
// required fields. Validation runs as a batch: Missing holds every
// absent field in canonical flag-name order, so a caller can fix the
// whole descriptor in one pass. Callers can use errors.As to extract
// the structured list:
//
//	var validationErr *protocol.ValidationError
//	if errors.As(err, &validationErr) {
//	    for _, name := range validationErr.Missing { ... }
//	}
type ValidationError struct {
	// Missing lists the canonical flag names of every absent required
	// field, in declaration order.
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol: missing required fields: %s", strings.Join(e.Missing, ", "))
}

// ProtocolError reports a reply that could not be parsed into any
// recognized shape. It indicates a grammar mismatch between this
// client and the instrument, not an instrument-side failure.
type ProtocolError struct {
	// Line is the offending reply line, when available.
	Line string
	// Reason describes what failed to parse.
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("protocol: invalid response: %s", e.Reason)
	}
	return fmt.Sprintf("protocol: invalid response %q: %s", e.Line, e.Reason)
}

// HardwareError is a failure reported by the instrument itself via an
// ERR reply (for example "stage not initialized" or an out-of-bounds
// target). The message is surfaced verbatim and the failed command is
// never retried: the instrument answered, so the channel is healthy
// and a retry would re-execute a command the hardware already
// rejected.
type HardwareError struct {
	// Message is the instrument's error text, verbatim.
	Message string
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("instrument: %s", e.Message)
}

// IsHardwareError reports whether err is (or wraps) a *HardwareError.
func IsHardwareError(err error) bool {
	var hardwareErr *HardwareError
	return errors.As(err, &hardwareErr)
}
