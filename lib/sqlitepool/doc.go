// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with standard
// pragmas applied to every connection: WAL journaling, NORMAL
// synchronous mode, a busy timeout, and memory-backed temp storage.
//
// The acquisition history store is the one scopelink consumer. The
// pool wraps zombiezen.com/go/sqlite/sqlitex and exposes the same
// Take/Put API:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// Schema creation belongs in the Config.OnConnect hook so that every
// connection sees the tables regardless of which one runs first.
package sqlitepool
