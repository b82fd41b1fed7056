package canvas

import "strings"

// PointerEvent is a mouse, pen or touch sample in display coordinates,
// carrying the element's displayed size at the time of the event.
type PointerEvent struct {
	Type          string  `json:"type"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
}

// point is the raw event position.
func (e PointerEvent) point() Point { return Point{X: e.X, Y: e.Y} }

// display is the size the client rendered the canvas at.
func (e PointerEvent) display() Size {
	return Size{Width: e.DisplayWidth, Height: e.DisplayHeight}
}

// Dispatch routes a pointer or touch event through the shared coordinate
// pipeline. It reports whether an image event was emitted.
func (s *Surface) Dispatch(ev PointerEvent) bool {
	if !s.ready() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(ev.Type)) {
	case "down", "start", "touchstart", "mousedown", "pointerdown":
		s.MoveCursor(ev.point(), ev.display())
		s.BeginStroke(ev.point(), ev.display())
	case "move", "touchmove", "mousemove", "pointermove":
		s.MoveCursor(ev.point(), ev.display())
		s.ExtendStroke(ev.point(), ev.display())
	case "enter", "mouseenter", "pointerenter":
		s.MoveCursor(ev.point(), ev.display())
	case "up", "end", "touchend", "mouseup", "pointerup":
		return s.EndStroke()
	case "leave", "cancel", "mouseleave", "pointerleave", "touchcancel", "pointercancel":
		s.HideCursor()
		return s.EndStroke()
	}
	return false
}
