// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Request is the structured form of one command line. Fields keep
// their insertion order so that Encode is deterministic. A Request is
// built either by the command constructors in this package or by
// ParseRequest on the receiving side.
type Request struct {
	verb   string
	fields []field
}

// field is one flag/value pair. A list field carries its elements in
// values with list set; a scalar field carries exactly one element.
type field struct {
	name   string
	list   bool
	values []string
}

// NewRequest returns an empty request for the given command verb.
func NewRequest(verb string) *Request {
	return &Request{verb: verb}
}

// Verb returns the command name carried by the leading --cmd flag.
func (r *Request) Verb() string {
	return r.verb
}

// Set adds a scalar field, replacing the value in place if the flag
// was already set.
func (r *Request) Set(name, value string) {
	for i := range r.fields {
		if r.fields[i].name == name {
			r.fields[i] = field{name: name, values: []string{value}}
			return
		}
	}
	r.fields = append(r.fields, field{name: name, values: []string{value}})
}

// SetFloat adds a scalar field holding a float formatted with the
// shortest representation that round-trips exactly.
func (r *Request) SetFloat(name string, value float64) {
	r.Set(name, formatFloat(value))
}

// SetInt adds a scalar integer field.
func (r *Request) SetInt(name string, value int) {
	r.Set(name, strconv.Itoa(value))
}

// SetList adds a list field, replacing the elements in place if the
// flag was already set.
func (r *Request) SetList(name string, values []string) {
	copied := make([]string, len(values))
	copy(copied, values)
	for i := range r.fields {
		if r.fields[i].name == name {
			r.fields[i] = field{name: name, list: true, values: copied}
			return
		}
	}
	r.fields = append(r.fields, field{name: name, list: true, values: copied})
}

// SetFloatList adds a list field of floats, each formatted with the
// shortest exact representation.
func (r *Request) SetFloatList(name string, values []float64) {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = formatFloat(v)
	}
	r.SetList(name, formatted)
}

// Has reports whether the named flag is present.
func (r *Request) Has(name string) bool {
	for i := range r.fields {
		if r.fields[i].name == name {
			return true
		}
	}
	return false
}

// Value returns the named scalar field.
func (r *Request) Value(name string) (string, error) {
	for i := range r.fields {
		if r.fields[i].name != name {
			continue
		}
		if r.fields[i].list {
			return "", fmt.Errorf("field --%s is a list", name)
		}
		return r.fields[i].values[0], nil
	}
	return "", fmt.Errorf("field --%s missing", name)
}

// Float returns the named scalar field parsed as a float.
func (r *Request) Float(name string) (float64, error) {
	raw, err := r.Value(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("field --%s: %w", name, err)
	}
	return v, nil
}

// Int returns the named scalar field parsed as an integer.
func (r *Request) Int(name string) (int, error) {
	raw, err := r.Value(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("field --%s: %w", name, err)
	}
	return v, nil
}

// List returns the elements of the named list field.
func (r *Request) List(name string) ([]string, error) {
	for i := range r.fields {
		if r.fields[i].name != name {
			continue
		}
		if !r.fields[i].list {
			return nil, fmt.Errorf("field --%s is not a list", name)
		}
		copied := make([]string, len(r.fields[i].values))
		copy(copied, r.fields[i].values)
		return copied, nil
	}
	return nil, fmt.Errorf("field --%s missing", name)
}

// FloatList returns the elements of the named list field parsed as
// floats.
func (r *Request) FloatList(name string) ([]float64, error) {
	elements, err := r.List(name)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(elements))
	for i, raw := range elements {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field --%s element %d: %w", name, i, err)
		}
		values[i] = v
	}
	return values, nil
}

// Encode renders the request as a single wire line without the
// trailing LF. The transport appends the line terminator on write.
func (r *Request) Encode() string {
	var b strings.Builder
	b.WriteString("--cmd ")
	b.WriteString(quoteToken(r.verb))
	for i := range r.fields {
		b.WriteString(" --")
		b.WriteString(r.fields[i].name)
		b.WriteByte(' ')
		if r.fields[i].list {
			b.WriteByte('(')
			for j, element := range r.fields[i].values {
				if j > 0 {
					b.WriteByte(',')
				}
				b.WriteString(quoteToken(element))
			}
			b.WriteByte(')')
		} else {
			b.WriteString(quoteToken(r.fields[i].values[0]))
		}
	}
	return b.String()
}

// NormalizePath converts backslash path separators to forward slashes,
// the canonical separator on the wire. The instrument accepts both;
// forward slashes survive tokenization without quoting.
func NormalizePath(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// formatFloat renders a float with the shortest representation that
// parses back to the identical value.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// needsQuoting reports whether a token must be quoted on the wire.
// Empty tokens quote to stay visible as a value.
func needsQuoting(token string) bool {
	if token == "" {
		return true
	}
	return strings.ContainsAny(token, " (),\"\\")
}

// quoteToken wraps a token in double quotes with backslash escaping
// when the token contains grammar metacharacters.
func quoteToken(token string) string {
	if !needsQuoting(token) {
		return token
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range token {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
