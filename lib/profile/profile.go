// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

// Package profile provides parsing and lookup for instrument profiles.
//
// A profile bundles the hardware selection (objective, detector,
// calibrated pixel size) and acquisition presets (angle/exposure
// sequences, white balance, processing pipeline) for one imaging
// configuration. Profiles are authored on disk as JSONC files (JSON
// extended with comments and trailing commas), one profile per file,
// named after the file basename.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
)

// Profile describes one imaging configuration.
type Profile struct {
	// ScanType names the imaging modality this profile targets.
	ScanType string `json:"scan_type"`

	// Objective is the hardware objective identifier, including the
	// magnification token (e.g. "PLAN-APO 20x/0.75").
	Objective string `json:"objective"`

	// Detector is the camera identifier.
	Detector string `json:"detector"`

	// PixelSizeMicrons is the calibrated camera pixel size at this
	// magnification. Zero means uncalibrated.
	PixelSizeMicrons float64 `json:"pixel_size_microns"`

	// Angles and Exposures are parallel per-angle illumination
	// settings. Lengths must match.
	Angles    []float64 `json:"angles,omitempty"`
	Exposures []float64 `json:"exposures,omitempty"`

	// WhiteBalance selects a white-balance mode by name.
	WhiteBalance string `json:"white_balance,omitempty"`

	// Pipeline names the server-side processing steps, in order.
	Pipeline []string `json:"pipeline,omitempty"`
}

// Validate checks internal consistency.
func (p *Profile) Validate() error {
	if p.ScanType == "" {
		return fmt.Errorf("profile: scan_type is required")
	}
	if p.Objective == "" {
		return fmt.Errorf("profile: objective is required")
	}
	if len(p.Angles) != len(p.Exposures) {
		return fmt.Errorf("profile: %d angles but %d exposures", len(p.Angles), len(p.Exposures))
	}
	return nil
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals and validates the result.
func Parse(data []byte) (*Profile, error) {
	stripped := jsonc.ToJSON(data)

	var p Profile
	if err := json.Unmarshal(stripped, &p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ReadFile reads a JSONC profile file from disk.
func ReadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Lookup loads the named profile from dir, trying name.jsonc then
// name.json.
func Lookup(dir, name string) (*Profile, error) {
	for _, extension := range []string{".jsonc", ".json"} {
		path := filepath.Join(dir, name+extension)
		if _, err := os.Stat(path); err == nil {
			return ReadFile(path)
		}
	}
	return nil, fmt.Errorf("profile: %q not found in %s", name, dir)
}

// List returns the profile names available in dir, sorted.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("profile: reading %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		extension := filepath.Ext(entry.Name())
		if extension != ".jsonc" && extension != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), extension))
	}
	sort.Strings(names)
	return names, nil
}
