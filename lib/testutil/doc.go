// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel helpers for tests: receive, send,
// and close waits with a timeout safety valve, so individual tests do
// not sprinkle their own select/time.After blocks.
package testutil
