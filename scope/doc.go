// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package scope is the typed facade over the control channel: stage
// queries and moves, scan start and lifecycle commands, calibration
// and shutdown. It owns nothing but translation — each method builds a
// protocol request, sends it through the shared transport with the
// appropriate timeout, and decodes the reply. Long-running scans hand
// off to an acquisition.Monitor.
package scope
