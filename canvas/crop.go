package canvas

import (
	"errors"
	"image"
	"image/draw"
)

var ErrEmptyCrop = errors.New("canvas: crop area does not overlap the image")

// Flatten copies the crop area of img onto an opaque Background so that
// transparent regions become white. A zero crop selects the whole image.
func Flatten(img image.Image, crop image.Rectangle) (*image.RGBA, error) {
	bounds := img.Bounds()
	if crop.Empty() {
		crop = bounds
	} else {
		crop = crop.Add(bounds.Min).Intersect(bounds)
		if crop.Empty() {
			return nil, ErrEmptyCrop
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(Background), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, crop.Min, draw.Over)
	return out, nil
}
