// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Command verbs understood by the instrument.
const (
	VerbGetPosition           = "get-position"
	VerbMoveStage             = "move-stage"
	VerbStartScan             = "start-scan"
	VerbStartBackground       = "start-background"
	VerbScanStatus            = "scan-status"
	VerbSkipFocus             = "skip-focus"
	VerbConfirmFocus          = "confirm-focus"
	VerbStopScan              = "stop-scan"
	VerbCalibrateWhiteBalance = "calibrate-white-balance"
	VerbShutdown              = "shutdown"
	VerbEcho                  = "echo"
)

// Axis identifies one mechanical axis of the stage.
type Axis string

// Stage axes.
const (
	AxisX        Axis = "x"
	AxisY        Axis = "y"
	AxisZ        Axis = "z"
	AxisRotation Axis = "rotation"
)

// PositionRequest queries the planar stage position. The reply carries
// x and y fields. This is also the health probe: it is idempotent,
// cheap for the instrument, and exercises the full round-trip path.
func PositionRequest() *Request {
	return NewRequest(VerbGetPosition)
}

// AxisPositionRequest queries the position of a single axis. The reply
// carries one field named after the axis.
func AxisPositionRequest(axis Axis) *Request {
	r := NewRequest(VerbGetPosition)
	r.Set("axis", string(axis))
	return r
}

// MoveRequest moves one axis to an absolute target in micrometers
// (degrees for the rotation axis).
func MoveRequest(axis Axis, target float64) *Request {
	r := NewRequest(VerbMoveStage)
	r.Set("axis", string(axis))
	r.SetFloat("target", target)
	return r
}

// StatusRequest polls the state of the running scan.
func StatusRequest() *Request {
	return NewRequest(VerbScanStatus)
}

// SkipFocusRequest tells the instrument to proceed without a manual
// focus confirmation, using whatever focus its automatic search found.
func SkipFocusRequest() *Request {
	return NewRequest(VerbSkipFocus)
}

// ConfirmFocusRequest answers a manual focus request with an
// operator-chosen Z position in micrometers.
func ConfirmFocusRequest(zMicrons float64) *Request {
	r := NewRequest(VerbConfirmFocus)
	r.SetFloat("z", zMicrons)
	return r
}

// StopRequest aborts the running scan. The instrument finishes the
// tile in flight and reports a cancelled status on the next poll.
func StopRequest() *Request {
	return NewRequest(VerbStopScan)
}

// CalibrateWhiteBalanceRequest runs the white-balance calibration
// routine. Calibration moves filters and averages frames, so callers
// must pair this with a read timeout far above the ordinary command
// timeout.
func CalibrateWhiteBalanceRequest() *Request {
	return NewRequest(VerbCalibrateWhiteBalance)
}

// ShutdownRequest asks the instrument process to exit. Once the
// instrument acknowledges, the channel is gone; the transport treats
// this verb specially and never retries it.
func ShutdownRequest() *Request {
	return NewRequest(VerbShutdown)
}

// EchoRequest asks the instrument to echo the given tag back in the
// reply payload. Diagnostic: pairing echoed tags with their requests
// verifies that round trips never cross.
func EchoRequest(tag string) *Request {
	r := NewRequest(VerbEcho)
	r.Set("tag", tag)
	return r
}
