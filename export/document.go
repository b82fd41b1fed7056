// Package export renders a finished generation as a PNG contact sheet or a
// single-page PDF.
package export

import (
	"image"
	"time"

	"sketchmagic_back/dataurl"
)

// Variant is one generated image and the name of its aspect-ratio variant.
type Variant struct {
	Name  string
	Image string
}

// Document is the render input: the original sketch plus its variants.
// Images are encoded image strings.
type Document struct {
	Title     string
	Original  string
	Variants  []Variant
	Style     string
	Category  string
	Detail    string
	CreatedAt time.Time
}

type panel struct {
	label string
	img   image.Image
}

// panels decodes every image. An undecodable image yields a nil img and is
// drawn as a placeholder.
func (d Document) panels() []panel {
	out := make([]panel, 0, len(d.Variants)+1)
	out = append(out, panel{label: "original", img: decodeOrNil(d.Original)})
	for _, v := range d.Variants {
		out = append(out, panel{label: v.Name, img: decodeOrNil(v.Image)})
	}
	return out
}

// decodeOrNil decodes an image, returning nil for anything unreadable.
func decodeOrNil(encoded string) image.Image {
	img, _, err := dataurl.Decode(encoded)
	if err != nil {
		return nil
	}
	return img
}

// fitSize scales w x h to fit inside maxW x maxH keeping the aspect ratio.
func fitSize(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if alt := maxH / h; alt < scale {
		scale = alt
	}
	return w * scale, h * scale
}
