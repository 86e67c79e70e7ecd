// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

// State is the connection lifecycle state.
type State int32

const (
	// Disconnected means no socket is open and none is being opened.
	Disconnected State = iota
	// Connecting means the initial dial is in progress.
	Connecting
	// Connected means a socket is open and round trips may proceed.
	Connected
	// Reconnecting means the socket failed and redial attempts are in
	// progress.
	Reconnecting
	// Failed means the reconnection budget was exhausted. A later
	// Connect or a reconnect-enabled Send may still recover.
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}
