// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "regexp"

// AngleExposure pairs an illumination angle in degrees with its
// exposure time in milliseconds. Angle/exposure sequences travel on
// the wire as two parallel lists.
type AngleExposure struct {
	AngleDegrees   float64
	ExposureMillis float64
}

// BackgroundCorrection configures flat-field correction against a
// previously acquired background reference.
type BackgroundCorrection struct {
	// ReferencePath locates the background reference acquisition.
	ReferencePath string
	// Divide selects division (shading) correction instead of
	// subtraction.
	Divide bool
}

// AutofocusTuning overrides the instrument's automatic focus search
// parameters.
type AutofocusTuning struct {
	// StepMicrons is the Z distance between focus samples.
	StepMicrons float64
	// RangeMicrons is the half-width of the search window around the
	// predicted focus.
	RangeMicrons float64
	// MaxPasses bounds how many times the search may widen its window
	// before the instrument raises a manual focus request.
	MaxPasses int
}

// ZStack configures a through-focus stack per tile.
type ZStack struct {
	// StartMicrons is the stack's offset from the focal plane.
	StartMicrons float64
	// StepMicrons is the distance between slices.
	StepMicrons float64
	// Slices is the number of planes to acquire.
	Slices int
}

// AcquisitionParams collects everything a scan start command can
// carry. ScanType, OutputPath, SampleID, SlideID and Region are
// required; all other fields are optional and omitted from the wire
// line when unset. Pointer fields distinguish "not set" from a zero
// value.
type AcquisitionParams struct {
	// ScanType names the imaging modality (for example "brightfield"
	// or "fluorescence"). The encoder enriches it with the objective's
	// magnification token.
	ScanType string
	// OutputPath is where the instrument writes acquired tiles.
	OutputPath string
	// SampleID identifies the physical sample.
	SampleID string
	// SlideID identifies the slide carrying the sample.
	SlideID string
	// Region identifies the pre-selected scan region on the slide.
	Region string

	// Objective and Detector select hardware by identifier string.
	Objective string
	Detector  string
	// PixelSizeMicrons is the calibrated size of one camera pixel at
	// the selected magnification.
	PixelSizeMicrons *float64

	// AngleExposures lists illumination angles with per-angle exposure
	// times.
	AngleExposures []AngleExposure
	// DisabledAngles lists angles the instrument must skip.
	DisabledAngles []float64
	// Pipeline names the server-side processing steps to run on
	// acquired tiles, in order.
	Pipeline []string
	// Background enables flat-field correction.
	Background *BackgroundCorrection
	// WhiteBalance selects a white-balance mode by name.
	WhiteBalance string
	// Autofocus overrides the focus search tuning.
	Autofocus *AutofocusTuning
	// LaserPowerPercent sets illumination laser power.
	LaserPowerPercent *float64
	// Stack acquires a Z stack per tile.
	Stack *ZStack
	// PredictedFocusMicrons seeds the focus search with a known-good
	// Z position.
	PredictedFocusMicrons *float64
}

// Acquisition is a validated, immutable scan descriptor. Construct it
// with NewAcquisition; a zero Acquisition is not valid.
type Acquisition struct {
	params   AcquisitionParams
	scanType string
}

// NewAcquisition validates params and returns an immutable descriptor.
// Validation is a batch: every missing required field is collected and
// reported in a single *ValidationError, so the caller can repair the
// whole parameter set in one pass. The params value is deep-copied;
// later mutation of the caller's slices does not affect the
// descriptor.
func NewAcquisition(params AcquisitionParams) (*Acquisition, error) {
	var missing []string
	if params.ScanType == "" {
		missing = append(missing, "scan-type")
	}
	if params.OutputPath == "" {
		missing = append(missing, "output")
	}
	if params.SampleID == "" {
		missing = append(missing, "sample")
	}
	if params.SlideID == "" {
		missing = append(missing, "slide")
	}
	if params.Region == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	return &Acquisition{
		params:   cloneParams(params),
		scanType: EnrichScanType(params.ScanType, params.Objective),
	}, nil
}

// ScanType returns the scan type as it will appear on the wire,
// including the magnification token derived from the objective.
func (a *Acquisition) ScanType() string {
	return a.scanType
}

// Params returns a deep copy of the descriptor's parameters.
func (a *Acquisition) Params() AcquisitionParams {
	return cloneParams(a.params)
}

// StartRequest builds the start-scan command line for this descriptor.
func (a *Acquisition) StartRequest() *Request {
	return a.request(VerbStartScan)
}

// BackgroundRequest builds the start-background command line: the same
// parameter set acquired as a background reference run.
func (a *Acquisition) BackgroundRequest() *Request {
	return a.request(VerbStartBackground)
}

// request encodes the descriptor under the given verb. Field order is
// fixed: required parameters, then hardware identifiers, then optional
// modifiers. The instrument tolerates any order; a fixed order keeps
// encoding deterministic.
func (a *Acquisition) request(verb string) *Request {
	p := &a.params
	r := NewRequest(verb)
	r.Set("scan-type", a.scanType)
	r.Set("output", NormalizePath(p.OutputPath))
	r.Set("sample", p.SampleID)
	r.Set("slide", p.SlideID)
	r.Set("region", p.Region)

	if p.Objective != "" {
		r.Set("objective", p.Objective)
	}
	if p.Detector != "" {
		r.Set("detector", p.Detector)
	}
	if p.PixelSizeMicrons != nil {
		r.SetFloat("pixel-size", *p.PixelSizeMicrons)
	}

	if len(p.AngleExposures) > 0 {
		angles := make([]float64, len(p.AngleExposures))
		exposures := make([]float64, len(p.AngleExposures))
		for i, ae := range p.AngleExposures {
			angles[i] = ae.AngleDegrees
			exposures[i] = ae.ExposureMillis
		}
		r.SetFloatList("angles", angles)
		r.SetFloatList("exposures", exposures)
	}
	if len(p.DisabledAngles) > 0 {
		r.SetFloatList("disabled-angles", p.DisabledAngles)
	}
	if len(p.Pipeline) > 0 {
		r.SetList("pipeline", p.Pipeline)
	}
	if p.Background != nil {
		r.Set("background-ref", NormalizePath(p.Background.ReferencePath))
		if p.Background.Divide {
			r.Set("background-mode", "divide")
		} else {
			r.Set("background-mode", "subtract")
		}
	}
	if p.WhiteBalance != "" {
		r.Set("white-balance", p.WhiteBalance)
	}
	if p.Autofocus != nil {
		r.SetFloat("af-step", p.Autofocus.StepMicrons)
		r.SetFloat("af-range", p.Autofocus.RangeMicrons)
		r.SetInt("af-max-passes", p.Autofocus.MaxPasses)
	}
	if p.LaserPowerPercent != nil {
		r.SetFloat("laser-power", *p.LaserPowerPercent)
	}
	if p.Stack != nil {
		r.SetFloat("z-start", p.Stack.StartMicrons)
		r.SetFloat("z-step", p.Stack.StepMicrons)
		r.SetInt("z-slices", p.Stack.Slices)
	}
	if p.PredictedFocusMicrons != nil {
		r.SetFloat("predicted-focus", *p.PredictedFocusMicrons)
	}
	return r
}

// magnificationPattern matches magnification tokens like "20x", "1.25x"
// or "40X" as standalone words.
var magnificationPattern = regexp.MustCompile(`(?i)\b\d+(\.\d+)?x\b`)

// EnrichScanType appends the magnification token from the objective
// identifier to the scan type, producing values like "brightfield 20x"
// from scan type "brightfield" and objective "PLAN-APO 20x/0.75".
// Enrichment is idempotent: a scan type that already carries a
// magnification-like token is returned unchanged, so re-encoding never
// double-appends. A scan type is also returned unchanged when the
// objective is empty or carries no recognizable token.
func EnrichScanType(scanType, objective string) string {
	if magnificationPattern.MatchString(scanType) {
		return scanType
	}
	magnification := magnificationPattern.FindString(objective)
	if magnification == "" {
		return scanType
	}
	return scanType + " " + magnification
}

// cloneParams deep-copies an AcquisitionParams value.
func cloneParams(params AcquisitionParams) AcquisitionParams {
	copied := params
	if params.AngleExposures != nil {
		copied.AngleExposures = make([]AngleExposure, len(params.AngleExposures))
		copy(copied.AngleExposures, params.AngleExposures)
	}
	if params.DisabledAngles != nil {
		copied.DisabledAngles = make([]float64, len(params.DisabledAngles))
		copy(copied.DisabledAngles, params.DisabledAngles)
	}
	if params.Pipeline != nil {
		copied.Pipeline = make([]string, len(params.Pipeline))
		copy(copied.Pipeline, params.Pipeline)
	}
	if params.PixelSizeMicrons != nil {
		v := *params.PixelSizeMicrons
		copied.PixelSizeMicrons = &v
	}
	if params.Background != nil {
		v := *params.Background
		copied.Background = &v
	}
	if params.Autofocus != nil {
		v := *params.Autofocus
		copied.Autofocus = &v
	}
	if params.LaserPowerPercent != nil {
		v := *params.LaserPowerPercent
		copied.LaserPowerPercent = &v
	}
	if params.Stack != nil {
		v := *params.Stack
		copied.Stack = &v
	}
	if params.PredictedFocusMicrons != nil {
		v := *params.PredictedFocusMicrons
		copied.PredictedFocusMicrons = &v
	}
	return copied
}
