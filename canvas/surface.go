package canvas

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"sync"
	"time"

	"sketchmagic_back/dataurl"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
)

const maxBitmapSide = 4096

var ErrInvalidSize = fmt.Errorf("canvas: bitmap size must be between 1 and %d pixels", maxBitmapSide)

// Background is the fill the bitmap starts with and the eraser paints with.
// It is opaque so exported sketches never contain transparency.
var Background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// ImageEvent is emitted whenever the bitmap reaches a terminal state: a
// finished stroke, a reset or a programmatic image load. Empty marks a reset,
// which callers treat as "no sketch".
type ImageEvent struct {
	Image    string    `json:"image"`
	Empty    bool      `json:"empty"`
	Sequence uint64    `json:"sequence"`
	At       time.Time `json:"at"`
}

// Cursor is the brush footprint overlay in display coordinates.
type Cursor struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Radius  float64 `json:"radius"`
	Visible bool    `json:"visible"`
}

// Surface is a fixed-resolution drawing bitmap fed by pointer input. Every
// method is a silent no-op on a nil or zero Surface.
type Surface struct {
	mu sync.Mutex

	dc     *gg.Context
	width  int
	height int

	brush       Brush
	drawing     bool
	last        Point
	strokeColor color.RGBA
	strokeWidth float64

	cursor       Cursor
	cursorBitmap Point
	cursorScale  float64

	latest   string
	sequence uint64
	events   *broker
	now      func() time.Time
}

// NewSurface allocates a width x height bitmap filled with Background.
func NewSurface(width, height int) (*Surface, error) {
	if width < 1 || height < 1 || width > maxBitmapSide || height > maxBitmapSide {
		return nil, ErrInvalidSize
	}
	dc := gg.NewContext(width, height)
	dc.SetLineCapRound()
	dc.SetLineJoinRound()
	s := &Surface{
		dc:     dc,
		width:  width,
		height: height,
		brush:  DefaultBrush(),
		events: newBroker(),
		now:    time.Now,
	}
	s.fillBackground()
	return s, nil
}

// ready reports whether the bitmap exists.
func (s *Surface) ready() bool {
	return s != nil && s.dc != nil
}

// Size returns the bitmap dimensions.
func (s *Surface) Size() Size {
	if !s.ready() {
		return Size{}
	}
	return Size{Width: float64(s.width), Height: float64(s.height)}
}

// ToBitmap converts a display-space position using the displayed size
// reported with the same event.
func (s *Surface) ToBitmap(p Point, display Size) Point {
	return ScaleToBitmap(p, display, s.Size())
}

// Brush returns the current brush state.
func (s *Surface) Brush() Brush {
	if !s.ready() {
		return Brush{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brush
}

// SetBrush replaces the whole brush state.
func (s *Surface) SetBrush(b Brush) error {
	if !s.ready() {
		return nil
	}
	normalized, err := normalizeHexColor(b.Color)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brush = Brush{Color: normalized, Width: clampLineWidth(b.Width), Eraser: b.Eraser}
	s.resizeCursorLocked()
	return nil
}

// SetColor changes the stroke color without touching the eraser flag.
func (s *Surface) SetColor(hex string) error {
	if !s.ready() {
		return nil
	}
	normalized, err := normalizeHexColor(hex)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.brush.Color = normalized
	s.mu.Unlock()
	return nil
}

// SetLineWidth clamps width into [MinLineWidth, MaxLineWidth].
func (s *Surface) SetLineWidth(width int) {
	if !s.ready() {
		return
	}
	s.mu.Lock()
	s.brush.Width = clampLineWidth(width)
	s.resizeCursorLocked()
	s.mu.Unlock()
}

// SetEraser toggles the eraser. The chosen color is left untouched.
func (s *Surface) SetEraser(on bool) {
	if !s.ready() {
		return
	}
	s.mu.Lock()
	s.brush.Eraser = on
	s.mu.Unlock()
}

// BeginStroke starts a path at p using the current brush.
func (s *Surface) BeginStroke(p Point, display Size) {
	if !s.ready() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	col := Background
	if !s.brush.Eraser {
		parsed, err := ParseHexColor(s.brush.Color)
		if err != nil {
			return
		}
		col = parsed
	}
	s.strokeColor = col
	s.strokeWidth = float64(clampLineWidth(s.brush.Width))
	s.last = s.ToBitmap(p, display)
	s.drawing = true
}

// ExtendStroke draws a round-capped segment from the previous point to p.
func (s *Surface) ExtendStroke(p Point, display Size) {
	if !s.ready() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return
	}

	next := s.ToBitmap(p, display)
	s.dc.SetColor(s.strokeColor)
	s.dc.SetLineWidth(s.strokeWidth)
	s.dc.DrawLine(s.last.X, s.last.Y, next.X, next.Y)
	s.dc.Stroke()
	s.last = next
}

// EndStroke finishes the active stroke and emits the full bitmap. It
// reports whether an event was emitted.
func (s *Surface) EndStroke() bool {
	if !s.ready() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drawing {
		return false
	}
	s.drawing = false
	return s.emitBitmapLocked()
}

// Drawing reports whether a stroke is in progress.
func (s *Surface) Drawing() bool {
	if !s.ready() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawing
}

// Reset repaints the bitmap with Background and emits an empty image.
func (s *Surface) Reset() {
	if !s.ready() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawing = false
	s.fillBackground()
	s.latest = ""
	s.publishLocked(ImageEvent{Empty: true})
}

// LoadImage repaints the background and draws the encoded image scaled to
// fit, centred, with its aspect ratio preserved.
func (s *Surface) LoadImage(encoded string) error {
	if !s.ready() {
		return nil
	}
	src, _, err := dataurl.Decode(encoded)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	dst, ok := s.dc.Image().(*image.RGBA)
	if !ok {
		return errors.New("canvas: bitmap is not RGBA")
	}

	s.drawing = false
	s.fillBackground()

	sb := src.Bounds()
	if sb.Dx() == s.width && sb.Dy() == s.height {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(dst, fitRect(sb.Dx(), sb.Dy(), s.width, s.height), src, sb, xdraw.Over, nil)
	}

	s.emitBitmapLocked()
	return nil
}

// fitRect returns the largest rectangle with the source aspect ratio that
// fits the target, centred on both axes.
func fitRect(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 {
		return image.Rect(0, 0, dstW, dstH)
	}
	scale := float64(dstW) / float64(srcW)
	if alt := float64(dstH) / float64(srcH); alt < scale {
		scale = alt
	}
	w := int(float64(srcW)*scale + 0.5)
	h := int(float64(srcH)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// Export encodes the current bitmap as a PNG data URL.
func (s *Surface) Export() (string, error) {
	if !s.ready() {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportLocked()
}

// Latest returns the last emitted image, or "" when there is no sketch.
func (s *Surface) Latest() string {
	if !s.ready() {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Subscribe returns a stream of image events. Only the newest pending
// event is kept for a slow reader.
func (s *Surface) Subscribe() (<-chan ImageEvent, func()) {
	if !s.ready() {
		ch := make(chan ImageEvent)
		close(ch)
		return ch, func() {}
	}
	return s.events.subscribe()
}

// MoveCursor positions the brush footprint overlay. The bitmap is not
// touched and no image event is emitted.
func (s *Surface) MoveCursor(p Point, display Size) Cursor {
	if !s.ready() {
		return Cursor{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bitmap := Size{Width: float64(s.width), Height: float64(s.height)}
	s.cursorBitmap = ScaleToBitmap(p, display, bitmap)
	s.cursorScale = scaleToDisplay(1, display, bitmap)
	s.cursor = Cursor{
		X:       p.X,
		Y:       p.Y,
		Radius:  float64(s.brush.Width) / 2 * s.cursorScale,
		Visible: true,
	}
	return s.cursor
}

// HideCursor hides the overlay, e.g. when the pointer leaves the surface.
func (s *Surface) HideCursor() Cursor {
	if !s.ready() {
		return Cursor{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor.Visible = false
	return s.cursor
}

// Cursor returns the current overlay state.
func (s *Surface) Cursor() Cursor {
	if !s.ready() {
		return Cursor{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Snapshot renders the bitmap as PNG, optionally with the cursor overlay
// composited on a copy.
func (s *Surface) Snapshot(withCursor bool) ([]byte, error) {
	if !s.ready() {
		return nil, nil
	}
	s.mu.Lock()
	src, ok := s.dc.Image().(*image.RGBA)
	if !ok {
		s.mu.Unlock()
		return nil, errors.New("canvas: bitmap is not RGBA")
	}
	frame := image.NewRGBA(src.Bounds())
	copy(frame.Pix, src.Pix)
	cursor := s.cursor
	at := s.cursorBitmap
	radius := float64(s.brush.Width) / 2
	s.mu.Unlock()

	overlay := gg.NewContextForRGBA(frame)
	if withCursor && cursor.Visible {
		overlay.SetLineWidth(1)
		overlay.SetColor(color.RGBA{A: 0xff})
		overlay.DrawCircle(at.X, at.Y, radius+1)
		overlay.Stroke()
		overlay.SetColor(Background)
		overlay.DrawCircle(at.X, at.Y, radius+2)
		overlay.Stroke()
	}

	var buf bytes.Buffer
	if err := overlay.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("canvas: encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// fillBackground paints the whole bitmap with Background.
func (s *Surface) fillBackground() {
	s.dc.SetColor(Background)
	s.dc.Clear()
}

// resizeCursorLocked follows a brush width change using the display scale
// of the last pointer event.
func (s *Surface) resizeCursorLocked() {
	if s.cursorScale <= 0 {
		return
	}
	s.cursor.Radius = float64(s.brush.Width) / 2 * s.cursorScale
}

// exportLocked encodes the bitmap. Callers hold s.mu.
func (s *Surface) exportLocked() (string, error) {
	var buf bytes.Buffer
	if err := s.dc.EncodePNG(&buf); err != nil {
		return "", fmt.Errorf("canvas: encode bitmap: %w", err)
	}
	return dataurl.EncodePNGBytes(buf.Bytes()), nil
}

// emitBitmapLocked publishes the current bitmap as the latest image.
func (s *Surface) emitBitmapLocked() bool {
	encoded, err := s.exportLocked()
	if err != nil {
		log.Printf("canvas: export bitmap failed: %v", err)
		return false
	}
	s.latest = encoded
	s.publishLocked(ImageEvent{Image: encoded})
	return true
}

// publishLocked stamps ev with the next sequence and fans it out.
func (s *Surface) publishLocked(ev ImageEvent) {
	s.sequence++
	ev.Sequence = s.sequence
	ev.At = s.now()
	s.events.publish(ev)
}
