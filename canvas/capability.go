package canvas

// Clearable is implemented by anything that can be reset to a blank sketch.
type Clearable interface {
	Reset()
}

// ImageLoadable accepts an encoded image as its new content.
type ImageLoadable interface {
	LoadImage(encoded string) error
}

// Exporter encodes the current bitmap.
type Exporter interface {
	Export() (string, error)
}

// Canvas is the handle owners use to drive a drawing surface.
type Canvas interface {
	Clearable
	ImageLoadable
	Exporter
	Latest() string
}

var _ Canvas = (*Surface)(nil)
