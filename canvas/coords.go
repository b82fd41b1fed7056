package canvas

// Point is a position either in display pixels (pointer events) or in
// bitmap pixels, depending on context.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ScaleToBitmap maps a display-space point onto the backing bitmap. Each
// axis is scaled independently so a non-uniformly stretched element still
// maps correctly. A non-positive displayed dimension is treated as the
// element being shown at bitmap size on that axis.
func ScaleToBitmap(p Point, display, bitmap Size) Point {
	sx, sy := 1.0, 1.0
	if display.Width > 0 {
		sx = bitmap.Width / display.Width
	}
	if display.Height > 0 {
		sy = bitmap.Height / display.Height
	}
	return Point{X: p.X * sx, Y: p.Y * sy}
}

// scaleToDisplay is the inverse of ScaleToBitmap for a length along x.
func scaleToDisplay(length float64, display, bitmap Size) float64 {
	if display.Width <= 0 || bitmap.Width <= 0 {
		return length
	}
	return length * display.Width / bitmap.Width
}
