// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides scopelink's standard CBOR encoding.
//
// All persisted binary data (the acquisition journal in particular)
// uses CBOR with Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// The same logical data always produces identical bytes, which keeps
// journal files diffable and content comparisons meaningful.
//
// Consumers import only this package, never fxamacker/cbor directly,
// so the encoding configuration stays in one place.
package codec
