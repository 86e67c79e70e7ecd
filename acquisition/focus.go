// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package acquisition

import (
	"context"

	"github.com/google/uuid"
)

// FocusRequest describes a manual focus checkpoint raised by the
// instrument: its automatic focus search was inconclusive and it will
// not proceed until told to skip or given a focal plane.
type FocusRequest struct {
	// Session identifies the acquisition that paused.
	Session uuid.UUID
	// Progress is the tile counter at the pause.
	Progress Progress
	// Message is the instrument's detail text, when it sent one.
	Message string
}

// FocusDecision is the answer to a FocusRequest. The zero value skips.
type FocusDecision struct {
	// Confirm selects an explicit focal plane instead of skipping.
	Confirm bool
	// ZMicrons is the confirmed focal plane. Ignored unless Confirm.
	ZMicrons float64
}

// Skip answers a focus request by telling the instrument to proceed
// without a focus adjustment.
func Skip() FocusDecision { return FocusDecision{} }

// ConfirmAt answers a focus request with an explicit focal plane.
func ConfirmAt(zMicrons float64) FocusDecision {
	return FocusDecision{Confirm: true, ZMicrons: zMicrons}
}

// FocusHandler decides what to do when the instrument raises a manual
// focus request. The monitor bounds every invocation with its
// FocusTimeout; a handler that blocks past the bound, returns an
// error, or sees its context expire is treated as Skip. There is no
// "no handler" case: the default is AutoSkip, so an acquisition can
// never wait indefinitely on an absent human.
type FocusHandler interface {
	HandleFocusRequest(ctx context.Context, request FocusRequest) (FocusDecision, error)
}

// FocusHandlerFunc adapts a function to the FocusHandler interface.
type FocusHandlerFunc func(ctx context.Context, request FocusRequest) (FocusDecision, error)

func (f FocusHandlerFunc) HandleFocusRequest(ctx context.Context, request FocusRequest) (FocusDecision, error) {
	return f(ctx, request)
}

// AutoSkip is the default FocusHandler: it answers every focus request
// with Skip immediately.
type AutoSkip struct{}

func (AutoSkip) HandleFocusRequest(context.Context, FocusRequest) (FocusDecision, error) {
	return Skip(), nil
}
