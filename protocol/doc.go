// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the text grammar spoken on the microscope
// control channel: request encoding, reply parsing, and the validated
// descriptors that produce acquisition commands.
//
// # Request grammar
//
// A request is one LF-terminated ASCII line of flag/value pairs. The
// command name travels as the leading --cmd flag:
//
//	--cmd move-stage --axis z --target 50.5
//
// Scalar fields encode as "--flag value". List fields encode as
// "--flag (v1,v2,v3)". Any token containing a space, parenthesis,
// comma, double quote, or backslash is wrapped in double quotes with
// backslash escaping. Path values are normalized to forward-slash
// separators before encoding. Encoding is pure and deterministic: the
// same descriptor always yields the same line, with required fields
// first, then hardware identifiers, then optional modifiers.
//
// # Reply grammar
//
// Every request produces exactly one LF-terminated reply line (a
// trailing CR is tolerated and stripped). A reply is either
//
//	OK [key=value ...]
//	ERR <message>
//
// where OK payload values follow the same quoting rule as request
// tokens. ERR lines carry a human-readable message from the
// instrument and surface as *HardwareError. Lines matching neither
// form surface as *ProtocolError.
//
// The channel carries no correlation identifiers: a reply is paired
// with a request only by arrival order. Serializing round trips is the
// transport's job; this package is pure text and has no I/O.
package protocol
