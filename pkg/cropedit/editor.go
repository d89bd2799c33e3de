// Package cropedit implements the interactive crop editor for the fundus
// region. The editor is an explicit finite-state machine over pointer events
// in frame-pixel coordinates; converting display coordinates to frame
// coordinates is the caller's responsibility.
package cropedit

import (
	"math"

	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
)

// State is the editor's drag state.
type State int

const (
	Idle State = iota
	DraggingMove
	DraggingResize
)

// String returns a readable state name.
func (s State) String() string {
	switch s {
	case DraggingMove:
		return "dragging-move"
	case DraggingResize:
		return "dragging-resize"
	default:
		return "idle"
	}
}

// Config holds the editor interaction limits.
type Config struct {
	// EdgeBand is the half-width in pixels of the ring around the circle
	// edge that starts a resize drag instead of a move drag.
	EdgeBand float64
	// MinRadius is the smallest radius a resize drag can reach.
	MinRadius float64
}

// Editor maintains the crop region for one frame and applies pointer events
// to it. Events must arrive in order; a new pointer-down is only recognized
// once the previous drag has been resolved by pointer-up.
type Editor struct {
	config Config
	state  State
	region region.Region
	width  int
	height int
	lastX  float64
	lastY  float64
}

// New creates an editor over a width×height frame starting from the given
// region.
func New(width, height int, initial region.Region) *Editor {
	return NewWithConfig(width, height, initial, Config{
		EdgeBand:  30,
		MinRadius: 50,
	})
}

// NewWithConfig creates an editor with custom interaction limits.
func NewWithConfig(width, height int, initial region.Region, config Config) *Editor {
	return &Editor{
		config: config,
		state:  Idle,
		region: initial,
		width:  width,
		height: height,
	}
}

// State returns the current drag state.
func (e *Editor) State() State {
	return e.state
}

// Region returns the current crop region.
func (e *Editor) Region() region.Region {
	return e.region
}

// SetRegion replaces the crop region, for example when restoring a session.
func (e *Editor) SetRegion(r region.Region) {
	e.region = r
}

// PointerDown starts a drag. A press within EdgeBand of the circle edge
// starts a resize, a press inside the circle starts a move, and a press
// outside has no effect.
func (e *Editor) PointerDown(x, y float64) {
	if e.state != Idle {
		return
	}

	dist := math.Hypot(x-e.region.CenterX, y-e.region.CenterY)

	switch {
	case math.Abs(dist-e.region.Radius) < e.config.EdgeBand:
		e.state = DraggingResize
	case dist < e.region.Radius:
		e.state = DraggingMove
	default:
		return
	}

	e.lastX = x
	e.lastY = y
}

// PointerMove updates the region during a drag. Moves translate the center
// by the pointer delta, resizes track the distance from the fixed center to
// the pointer. Both clamp so the circle never leaves the frame.
func (e *Editor) PointerMove(x, y float64) {
	switch e.state {
	case DraggingMove:
		e.region = MoveBy(e.region, x-e.lastX, y-e.lastY, e.width, e.height)
		e.lastX = x
		e.lastY = y
	case DraggingResize:
		e.region = ResizeTo(e.region, x, y, e.width, e.height, e.config.MinRadius)
	}
}

// PointerUp ends any active drag.
func (e *Editor) PointerUp() {
	e.state = Idle
}

// ResetToAuto re-runs detection on a frame and discards manual adjustments.
func (e *Editor) ResetToAuto(detector *region.Detector, f *raster.Frame) {
	e.state = Idle
	e.region = detector.Detect(f)
}

// MoveBy is the pure move transition: translate the center by (dx, dy) and
// clamp it so the circle stays inside a width×height frame.
func MoveBy(r region.Region, dx, dy float64, width, height int) region.Region {
	r.CenterX = clamp(r.CenterX+dx, r.Radius, float64(width)-r.Radius)
	r.CenterY = clamp(r.CenterY+dy, r.Radius, float64(height)-r.Radius)
	r.ManuallyAdjusted = true
	return r
}

// ResizeTo is the pure resize transition: the new radius is the distance
// from the fixed center to the pointer, clamped to [minRadius, largest
// in-bounds radius]. Containment wins when the two limits conflict.
func ResizeTo(r region.Region, x, y float64, width, height int, minRadius float64) region.Region {
	radius := math.Hypot(x-r.CenterX, y-r.CenterY)
	if radius < minRadius {
		radius = minRadius
	}
	if max := r.MaxRadius(width, height); radius > max {
		radius = max
	}
	r.Radius = radius
	r.ManuallyAdjusted = true
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
