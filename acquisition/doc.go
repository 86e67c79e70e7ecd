// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package acquisition drives long-running scans over the synchronous
// command channel. A scan outlives any single round trip: the start
// command returns immediately and the instrument reports progress only
// when polled. The Monitor owns that poll loop, tracks the session
// state machine, and answers the instrument's manual focus requests.
//
// Each poll is one ordinary round trip through the shared transport.
// The Monitor holds no lock between polls, so stage queries and a
// cancellation request interleave freely with a running acquisition.
//
// The package also provides the two durable sinks the CLI wires in: a
// CBOR event journal and a SQLite scan history store.
package acquisition
