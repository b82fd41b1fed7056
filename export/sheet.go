package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	sheetTile    = 320
	sheetPadding = 24
	sheetLabel   = 28
	sheetFooter  = 24
	sheetFontPt  = 14
)

var (
	monoOnce sync.Once
	monoFont *truetype.Font
	monoErr  error
)

// loadMono parses the embedded Go Mono face.
func loadMono() (*truetype.Font, error) {
	monoOnce.Do(func() {
		monoFont, monoErr = truetype.Parse(gomono.TTF)
		if monoErr != nil {
			monoErr = fmt.Errorf("export: parse font: %w", monoErr)
		}
	})
	return monoFont, monoErr
}

// Sheet renders the original and every variant side by side on white, each
// labelled with its variant name.
func Sheet(doc Document) ([]byte, error) {
	ttf, err := loadMono()
	if err != nil {
		return nil, err
	}
	panels := doc.panels()

	width := len(panels)*(sheetTile+sheetPadding) + sheetPadding
	height := sheetPadding + sheetLabel + sheetTile + sheetFooter + sheetPadding
	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()
	dc.SetFontFace(truetype.NewFace(ttf, &truetype.Options{
		Size:    sheetFontPt,
		DPI:     72,
		Hinting: font.HintingFull,
	}))

	for i, p := range panels {
		x := float64(sheetPadding + i*(sheetTile+sheetPadding))
		y := float64(sheetPadding + sheetLabel)

		dc.SetColor(color.Black)
		dc.DrawStringAnchored(p.label, x+sheetTile/2, float64(sheetPadding)+sheetLabel/2, 0.5, 0.5)

		if p.img == nil {
			drawPlaceholder(dc, x, y)
			continue
		}
		dc.DrawImage(scaleInto(p.img, sheetTile, sheetTile), int(x), int(y))
	}

	footer := doc.Title
	if !doc.CreatedAt.IsZero() {
		footer = fmt.Sprintf("%s  %s", footer, doc.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}
	dc.SetColor(color.Gray{Y: 0x55})
	dc.DrawStringAnchored(footer, float64(sheetPadding), float64(height-sheetPadding-sheetFooter/2), 0, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("export: encode sheet: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleInto fits img into a tile x tile square, centred on white.
func scaleInto(img image.Image, tileW, tileH int) image.Image {
	b := img.Bounds()
	w, h := fitSize(float64(b.Dx()), float64(b.Dy()), float64(tileW), float64(tileH))
	out := image.NewRGBA(image.Rect(0, 0, tileW, tileH))
	xdraw.Draw(out, out.Bounds(), image.White, image.Point{}, xdraw.Src)
	x0 := (tileW - int(w)) / 2
	y0 := (tileH - int(h)) / 2
	xdraw.ApproxBiLinear.Scale(out, image.Rect(x0, y0, x0+int(w), y0+int(h)), img, b, xdraw.Over, nil)
	return out
}

// drawPlaceholder marks a missing variant cell.
func drawPlaceholder(dc *gg.Context, x, y float64) {
	dc.SetColor(color.Gray{Y: 0xee})
	dc.DrawRectangle(x, y, sheetTile, sheetTile)
	dc.Fill()
	dc.SetColor(color.Gray{Y: 0x88})
	dc.DrawStringAnchored("unavailable", x+sheetTile/2, y+sheetTile/2, 0.5, 0.5)
}
