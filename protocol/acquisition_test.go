// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

// validParams returns a minimal valid parameter set. Tests mutate the
// returned value to exercise specific fields.
func validParams() AcquisitionParams {
	return AcquisitionParams{
		ScanType:   "brightfield",
		OutputPath: "/data/scans/run1",
		SampleID:   "S-0042",
		SlideID:    "SL-7",
		Region:     "R1",
	}
}

func TestNewAcquisitionCollectsAllMissingFields(t *testing.T) {
	_, err := NewAcquisition(AcquisitionParams{})
	if err == nil {
		t.Fatal("NewAcquisition succeeded with empty params, want ValidationError")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	want := []string{"scan-type", "output", "sample", "slide", "region"}
	if !reflect.DeepEqual(validationErr.Missing, want) {
		t.Errorf("Missing = %v, want %v", validationErr.Missing, want)
	}
}

func TestNewAcquisitionReportsOnlyAbsentFields(t *testing.T) {
	params := validParams()
	params.SampleID = ""
	params.Region = ""
	_, err := NewAcquisition(params)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	want := []string{"sample", "region"}
	if !reflect.DeepEqual(validationErr.Missing, want) {
		t.Errorf("Missing = %v, want %v", validationErr.Missing, want)
	}
}

func TestEnrichScanType(t *testing.T) {
	tests := []struct {
		name      string
		scanType  string
		objective string
		want      string
	}{
		{"appends_token", "brightfield", "PLAN-APO 20x/0.75", "brightfield 20x"},
		{"fractional_magnification", "overview", "MACRO 1.25x", "overview 1.25x"},
		{"uppercase_token", "brightfield", "UPLXAPO 40X", "brightfield 40X"},
		{"already_enriched", "brightfield 20x", "PLAN-APO 20x/0.75", "brightfield 20x"},
		{"already_enriched_other_mag", "brightfield 10x", "PLAN-APO 20x/0.75", "brightfield 10x"},
		{"no_objective", "brightfield", "", "brightfield"},
		{"objective_without_token", "brightfield", "PH1 CONDENSER", "brightfield"},
		{"x_inside_word_ignored", "brightfield", "FLEX lens", "brightfield"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnrichScanType(tt.scanType, tt.objective)
			if got != tt.want {
				t.Errorf("EnrichScanType(%q, %q) = %q, want %q", tt.scanType, tt.objective, got, tt.want)
			}
		})
	}
}

func TestEnrichScanTypeIsIdempotent(t *testing.T) {
	once := EnrichScanType("brightfield", "PLAN-APO 20x/0.75")
	twice := EnrichScanType(once, "PLAN-APO 20x/0.75")
	if once != twice {
		t.Errorf("second enrichment changed value: %q -> %q", once, twice)
	}
}

func TestStartRequestGoldenLine(t *testing.T) {
	pixelSize := 0.345
	laserPower := 80.0
	predictedFocus := 51.25
	params := AcquisitionParams{
		ScanType:         "brightfield",
		OutputPath:       `D:\scans\run 7`,
		SampleID:         "S-0042",
		SlideID:          "SL-7",
		Region:           "R1",
		Objective:        "PLAN-APO 20x/0.75",
		Detector:         "cam0",
		PixelSizeMicrons: &pixelSize,
		AngleExposures: []AngleExposure{
			{AngleDegrees: 0, ExposureMillis: 12.5},
			{AngleDegrees: 120, ExposureMillis: 15},
			{AngleDegrees: 240, ExposureMillis: 15},
		},
		DisabledAngles: []float64{240},
		Pipeline:       []string{"stitch", "pyramid"},
		Background: &BackgroundCorrection{
			ReferencePath: `D:\refs\bg1`,
			Divide:        true,
		},
		WhiteBalance:          "auto",
		Autofocus:             &AutofocusTuning{StepMicrons: 1.5, RangeMicrons: 30, MaxPasses: 3},
		LaserPowerPercent:     &laserPower,
		Stack:                 &ZStack{StartMicrons: -5, StepMicrons: 2.5, Slices: 5},
		PredictedFocusMicrons: &predictedFocus,
	}

	acquisition, err := NewAcquisition(params)
	if err != nil {
		t.Fatalf("NewAcquisition: %v", err)
	}

	got := acquisition.StartRequest().Encode()
	want := `--cmd start-scan --scan-type "brightfield 20x" --output "D:/scans/run 7" ` +
		`--sample S-0042 --slide SL-7 --region R1 --objective "PLAN-APO 20x/0.75" ` +
		`--detector cam0 --pixel-size 0.345 --angles (0,120,240) --exposures (12.5,15,15) ` +
		`--disabled-angles (240) --pipeline (stitch,pyramid) --background-ref D:/refs/bg1 ` +
		`--background-mode divide --white-balance auto --af-step 1.5 --af-range 30 ` +
		`--af-max-passes 3 --laser-power 80 --z-start -5 --z-step 2.5 --z-slices 5 ` +
		`--predicted-focus 51.25`
	if got != want {
		t.Errorf("StartRequest().Encode() =\n  %q\nwant\n  %q", got, want)
	}

	background := acquisition.BackgroundRequest().Encode()
	if got, want := background[:len("--cmd start-background")], "--cmd start-background"; got != want {
		t.Errorf("BackgroundRequest verb = %q, want %q", got, want)
	}
}

func TestAngleExposureListsRoundTrip(t *testing.T) {
	params := validParams()
	params.AngleExposures = []AngleExposure{
		{AngleDegrees: 0.1, ExposureMillis: 33.333333333333336},
		{AngleDegrees: 137.50776405003785, ExposureMillis: 12.000000000000002},
	}
	acquisition, err := NewAcquisition(params)
	if err != nil {
		t.Fatalf("NewAcquisition: %v", err)
	}

	line := acquisition.StartRequest().Encode()
	parsed, err := ParseRequest(line)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	angles, err := parsed.FloatList("angles")
	if err != nil {
		t.Fatalf("FloatList(angles): %v", err)
	}
	exposures, err := parsed.FloatList("exposures")
	if err != nil {
		t.Fatalf("FloatList(exposures): %v", err)
	}
	if len(angles) != len(params.AngleExposures) || len(exposures) != len(params.AngleExposures) {
		t.Fatalf("lengths = %d/%d, want %d", len(angles), len(exposures), len(params.AngleExposures))
	}
	for i, ae := range params.AngleExposures {
		if math.Abs(angles[i]-ae.AngleDegrees) > 1e-9 {
			t.Errorf("angles[%d] = %v, want %v", i, angles[i], ae.AngleDegrees)
		}
		if math.Abs(exposures[i]-ae.ExposureMillis) > 1e-9 {
			t.Errorf("exposures[%d] = %v, want %v", i, exposures[i], ae.ExposureMillis)
		}
	}
}

func TestAcquisitionIsIsolatedFromCallerMutation(t *testing.T) {
	params := validParams()
	params.Pipeline = []string{"stitch"}
	params.DisabledAngles = []float64{90}

	acquisition, err := NewAcquisition(params)
	if err != nil {
		t.Fatalf("NewAcquisition: %v", err)
	}
	before := acquisition.StartRequest().Encode()

	params.Pipeline[0] = "mutated"
	params.DisabledAngles[0] = 270

	after := acquisition.StartRequest().Encode()
	if before != after {
		t.Errorf("descriptor changed after caller mutation:\n  before %q\n  after  %q", before, after)
	}
}

func TestOptionalFieldsOmittedWhenUnset(t *testing.T) {
	acquisition, err := NewAcquisition(validParams())
	if err != nil {
		t.Fatalf("NewAcquisition: %v", err)
	}
	got := acquisition.StartRequest().Encode()
	want := "--cmd start-scan --scan-type brightfield --output /data/scans/run1 " +
		"--sample S-0042 --slide SL-7 --region R1"
	if got != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}
