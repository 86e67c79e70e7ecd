// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Instrument scan states as they appear in scan-status reply payloads.
const (
	StateQueued       = "queued"
	StateRunning      = "running"
	StateWaitingFocus = "waiting-focus"
	StateComplete     = "complete"
	StateFailed       = "failed"
	StateCancelled    = "cancelled"
)

// Reply is the parsed payload of an OK response line: key=value pairs
// in wire order.
type Reply struct {
	pairs []replyPair
}

type replyPair struct {
	key   string
	value string
}

// ParseReply parses one reply line. ERR lines are returned as
// *HardwareError with the instrument's message verbatim; lines that
// are neither OK nor ERR are returned as *ProtocolError.
func ParseReply(line string) (*Reply, error) {
	line = strings.TrimRight(line, "\r")
	switch {
	case line == "OK":
		return &Reply{}, nil
	case strings.HasPrefix(line, "OK "):
		pairs, err := parsePayload(line)
		if err != nil {
			return nil, err
		}
		return &Reply{pairs: pairs}, nil
	case line == "ERR":
		return nil, &HardwareError{Message: "unspecified instrument error"}
	case strings.HasPrefix(line, "ERR "):
		return nil, &HardwareError{Message: line[len("ERR "):]}
	}
	return nil, &ProtocolError{Line: line, Reason: "reply is neither OK nor ERR"}
}

// parsePayload splits the payload of an OK line into key=value pairs.
// Values may be quoted to carry spaces; quoted values use the same
// backslash escaping as request tokens.
func parsePayload(line string) ([]replyPair, error) {
	s := &lineScanner{input: line, pos: len("OK ")}
	var pairs []replyPair
	for {
		s.skipSpaces()
		if s.done() {
			return pairs, nil
		}
		key := s.bare("= ")
		if key == "" || s.done() || s.input[s.pos] != '=' {
			return nil, &ProtocolError{Line: line, Reason: fmt.Sprintf("expected key=value at column %d", s.pos+1)}
		}
		s.pos++ // '='
		var value string
		if !s.done() && s.input[s.pos] == '"' {
			quoted, err := s.quoted()
			if err != nil {
				return nil, &ProtocolError{Line: line, Reason: err.Error()}
			}
			value = quoted
		} else {
			value = s.bare(" ")
		}
		pairs = append(pairs, replyPair{key: key, value: value})
	}
}

// Get returns the value of the named payload field.
func (r *Reply) Get(key string) (string, bool) {
	for i := range r.pairs {
		if r.pairs[i].key == key {
			return r.pairs[i].value, true
		}
	}
	return "", false
}

// Float returns the named payload field parsed as a float.
func (r *Reply) Float(key string) (float64, error) {
	raw, ok := r.Get(key)
	if !ok {
		return 0, &ProtocolError{Reason: fmt.Sprintf("reply payload missing %q field", key)}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ProtocolError{Reason: fmt.Sprintf("reply field %s=%q is not a number", key, raw)}
	}
	return v, nil
}

// Position is a planar stage location reported by get-position.
type Position struct {
	X float64
	Y float64
}

// ParsePosition decodes the x/y payload of a planar position reply.
func ParsePosition(reply *Reply) (Position, error) {
	x, err := reply.Float("x")
	if err != nil {
		return Position{}, err
	}
	y, err := reply.Float("y")
	if err != nil {
		return Position{}, err
	}
	return Position{X: x, Y: y}, nil
}

// StatusReport is the decoded payload of a scan-status reply.
type StatusReport struct {
	// State is one of the State* constants.
	State string
	// Tile and Total carry acquisition progress when the instrument
	// reports it; both are zero otherwise.
	Tile  int
	Total int
	// Message is the instrument's failure detail on a failed scan.
	Message string
}

// ParseStatusReport decodes a scan-status reply payload. An unknown
// status token is a *ProtocolError: the monitor must never guess at a
// state it does not recognize.
func ParseStatusReport(reply *Reply) (StatusReport, error) {
	state, ok := reply.Get("status")
	if !ok {
		return StatusReport{}, &ProtocolError{Reason: "scan-status reply missing status field"}
	}
	switch state {
	case StateQueued, StateRunning, StateWaitingFocus, StateComplete, StateFailed, StateCancelled:
	default:
		return StatusReport{}, &ProtocolError{Reason: fmt.Sprintf("unrecognized status token %q", state)}
	}

	report := StatusReport{State: state}
	if message, ok := reply.Get("error"); ok {
		report.Message = message
	}
	progress, ok := reply.Get("tile")
	if !ok {
		return report, nil
	}
	current, total, found := strings.Cut(progress, "/")
	if !found {
		return StatusReport{}, &ProtocolError{Reason: fmt.Sprintf("malformed tile progress %q", progress)}
	}
	var err error
	if report.Tile, err = strconv.Atoi(current); err != nil {
		return StatusReport{}, &ProtocolError{Reason: fmt.Sprintf("malformed tile progress %q", progress)}
	}
	if report.Total, err = strconv.Atoi(total); err != nil {
		return StatusReport{}, &ProtocolError{Reason: fmt.Sprintf("malformed tile progress %q", progress)}
	}
	return report, nil
}
