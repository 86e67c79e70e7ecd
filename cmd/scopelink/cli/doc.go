// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the scopelink command tree: dispatch, flag
// parsing with typo suggestions, and structured help output.
package cli
