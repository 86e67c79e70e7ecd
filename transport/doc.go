// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport owns the TCP connection to the microscope server
// and turns its half-duplex, unframed line protocol into a safe
// synchronous Send operation.
//
// The wire protocol carries no correlation identifiers: a reply is
// paired with a request purely by arrival order. Any interleaving of
// two in-flight requests — two goroutines, or a health probe racing an
// application command — would silently pair each reply with the wrong
// request and corrupt both callers without an error. The transport
// therefore holds one exclusive lock for every complete round trip
// (write plus read), and everything that touches the socket goes
// through it: application commands, acquisition status polls, and the
// background health prober alike.
//
// On I/O failure the transport redials a bounded number of times and
// retries the failed command exactly once; commands are not assumed
// idempotent beyond that. ERR replies from the instrument are not
// failures of the channel and pass through untouched.
package transport
