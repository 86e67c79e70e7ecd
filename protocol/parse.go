// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strings"
)

// ParseRequest parses one request line into its structured form. It is
// the exact inverse of Request.Encode and is what the simulated
// instrument uses to decode incoming commands. The line must start
// with the --cmd flag and every flag must carry a value.
func ParseRequest(line string) (*Request, error) {
	s := &lineScanner{input: strings.TrimRight(line, "\r\n")}

	name, err := s.flag()
	if err != nil {
		return nil, err
	}
	if name != "cmd" {
		return nil, fmt.Errorf("protocol: request must start with --cmd, got --%s", name)
	}
	verb, list, err := s.value()
	if err != nil {
		return nil, fmt.Errorf("protocol: command verb: %w", err)
	}
	if list != nil {
		return nil, fmt.Errorf("protocol: command verb must be a scalar")
	}

	request := NewRequest(verb)
	for {
		s.skipSpaces()
		if s.done() {
			return request, nil
		}
		name, err := s.flag()
		if err != nil {
			return nil, err
		}
		if request.Has(name) {
			return nil, fmt.Errorf("protocol: duplicate flag --%s", name)
		}
		scalar, list, err := s.value()
		if err != nil {
			return nil, fmt.Errorf("protocol: flag --%s: %w", name, err)
		}
		if list != nil {
			request.SetList(name, list)
		} else {
			request.Set(name, scalar)
		}
	}
}

// lineScanner walks a request line token by token.
type lineScanner struct {
	input string
	pos   int
}

func (s *lineScanner) done() bool {
	return s.pos >= len(s.input)
}

func (s *lineScanner) skipSpaces() {
	for s.pos < len(s.input) && s.input[s.pos] == ' ' {
		s.pos++
	}
}

// flag consumes a --name token.
func (s *lineScanner) flag() (string, error) {
	s.skipSpaces()
	if !strings.HasPrefix(s.input[s.pos:], "--") {
		return "", fmt.Errorf("protocol: expected flag at column %d", s.pos+1)
	}
	s.pos += 2
	start := s.pos
	for s.pos < len(s.input) && s.input[s.pos] != ' ' {
		s.pos++
	}
	if s.pos == start {
		return "", fmt.Errorf("protocol: empty flag name at column %d", start+1)
	}
	return s.input[start:s.pos], nil
}

// value consumes the token following a flag: a quoted or bare scalar,
// or a parenthesized list. Exactly one of the returns is meaningful:
// list is nil for scalars.
func (s *lineScanner) value() (string, []string, error) {
	s.skipSpaces()
	if s.done() {
		return "", nil, fmt.Errorf("missing value")
	}
	switch s.input[s.pos] {
	case '(':
		list, err := s.list()
		return "", list, err
	case '"':
		scalar, err := s.quoted()
		return scalar, nil, err
	default:
		return s.bare(" "), nil, nil
	}
}

// bare consumes an unquoted token up to any byte in stop or end of
// line.
func (s *lineScanner) bare(stop string) string {
	start := s.pos
	for s.pos < len(s.input) && !strings.ContainsRune(stop, rune(s.input[s.pos])) {
		s.pos++
	}
	return s.input[start:s.pos]
}

// quoted consumes a double-quoted token, honoring backslash escapes.
func (s *lineScanner) quoted() (string, error) {
	s.pos++ // opening quote
	var b strings.Builder
	for s.pos < len(s.input) {
		c := s.input[s.pos]
		switch c {
		case '\\':
			if s.pos+1 >= len(s.input) {
				return "", fmt.Errorf("dangling escape at end of line")
			}
			s.pos++
			b.WriteByte(s.input[s.pos])
			s.pos++
		case '"':
			s.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			s.pos++
		}
	}
	return "", fmt.Errorf("unterminated quote")
}

// list consumes a parenthesized, comma-separated element list. An
// empty list "()" yields an empty non-nil slice so the field still
// registers as a list.
func (s *lineScanner) list() ([]string, error) {
	s.pos++ // opening parenthesis
	elements := []string{}
	for {
		s.skipSpaces()
		if s.done() {
			return nil, fmt.Errorf("unterminated list")
		}
		if s.input[s.pos] == ')' {
			s.pos++
			return elements, nil
		}
		var element string
		var err error
		if s.input[s.pos] == '"' {
			element, err = s.quoted()
			if err != nil {
				return nil, err
			}
		} else {
			element = s.bare(",)")
		}
		elements = append(elements, element)

		s.skipSpaces()
		if s.done() {
			return nil, fmt.Errorf("unterminated list")
		}
		switch s.input[s.pos] {
		case ',':
			s.pos++
		case ')':
			s.pos++
			return elements, nil
		default:
			return nil, fmt.Errorf("expected ',' or ')' at column %d", s.pos+1)
		}
	}
}
