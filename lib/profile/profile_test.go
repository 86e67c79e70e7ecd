// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"os"
	"path/filepath"
	"testing"
)

const brightfieldProfile = `{
	// Standard 20x brightfield setup.
	"scan_type": "brightfield",
	"objective": "PLAN-APO 20x/0.75",
	"detector": "cam-left",
	"pixel_size_microns": 0.345,
	"angles": [0, 120, 240],
	"exposures": [12.5, 12.5, 25],
	"pipeline": ["stitch", "export"], // trailing comma tolerated below
}`

func TestParseJSONC(t *testing.T) {
	p, err := Parse([]byte(brightfieldProfile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Objective != "PLAN-APO 20x/0.75" {
		t.Errorf("Objective = %q", p.Objective)
	}
	if len(p.Angles) != 3 || p.Angles[1] != 120 {
		t.Errorf("Angles = %v", p.Angles)
	}
	if p.PixelSizeMicrons != 0.345 {
		t.Errorf("PixelSizeMicrons = %v", p.PixelSizeMicrons)
	}
}

func TestParseRejectsMismatchedSequences(t *testing.T) {
	_, err := Parse([]byte(`{"scan_type": "bf", "objective": "20x", "angles": [0, 90], "exposures": [10]}`))
	if err == nil {
		t.Fatal("Parse succeeded with 2 angles and 1 exposure")
	}
}

func TestParseRejectsMissingRequired(t *testing.T) {
	if _, err := Parse([]byte(`{"objective": "20x"}`)); err == nil {
		t.Fatal("Parse succeeded without scan_type")
	}
	if _, err := Parse([]byte(`{"scan_type": "bf"}`)); err == nil {
		t.Fatal("Parse succeeded without objective")
	}
}

func TestLookupAndList(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bf-20x.jsonc"), []byte(brightfieldProfile), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := Lookup(dir, "bf-20x")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.Detector != "cam-left" {
		t.Errorf("Detector = %q", p.Detector)
	}

	names, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 1 || names[0] != "bf-20x" {
		t.Errorf("List = %v, want [bf-20x]", names)
	}

	if _, err := Lookup(dir, "missing"); err == nil {
		t.Error("Lookup(missing) succeeded")
	}
}
