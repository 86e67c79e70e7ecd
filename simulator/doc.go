// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package simulator implements an in-process microscope server for
// tests and the scopelink-sim binary.
//
// The simulator speaks the same wire grammar as the real instrument
// (it decodes requests with protocol.ParseRequest, so the grammar has
// exactly one source of truth) and models the pieces the client cares
// about: stage position per axis, one acquisition at a time with
// per-poll tile progress, the manual-focus hold, and cancellation.
//
// Fault injection hooks drive the transport's failure paths: per-verb
// ERR replies, a fixed response delay for timeout tests, and
// drop-the-connection-every-Nth-request for reconnect tests.
package simulator
