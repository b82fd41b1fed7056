package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"sketchmagic_back/dataurl"
)

func solidImage(t *testing.T, w, h int, c color.RGBA) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	encoded, err := dataurl.Encode(img)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return encoded
}

func sampleDocument(t *testing.T) Document {
	return Document{
		Title:    "Anime / Character",
		Original: solidImage(t, 80, 80, color.RGBA{A: 0xff}),
		Variants: []Variant{
			{Name: "landscape", Image: solidImage(t, 160, 90, color.RGBA{R: 0xff, A: 0xff})},
			{Name: "square", Image: solidImage(t, 64, 64, color.RGBA{B: 0xff, A: 0xff})},
		},
		Style:     "Anime",
		Category:  "Character",
		CreatedAt: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSheetLayout(t *testing.T) {
	data, err := Sheet(sampleDocument(t))
	if err != nil {
		t.Fatalf("Sheet: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantW := 3*(sheetTile+sheetPadding) + sheetPadding
	if img.Bounds().Dx() != wantW {
		t.Fatalf("width = %d, want %d", img.Bounds().Dx(), wantW)
	}

	tileY := sheetPadding + sheetLabel + sheetTile/2
	centre := func(i int) color.RGBA {
		x := sheetPadding + i*(sheetTile+sheetPadding) + sheetTile/2
		return color.RGBAModel.Convert(img.At(x, tileY)).(color.RGBA)
	}
	if got := centre(0); got != (color.RGBA{A: 0xff}) {
		t.Fatalf("original centre = %v", got)
	}
	if got := centre(1); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Fatalf("landscape centre = %v", got)
	}
	if got := centre(2); got != (color.RGBA{B: 0xff, A: 0xff}) {
		t.Fatalf("square centre = %v", got)
	}
}

func TestSheetPlaceholderForBrokenImage(t *testing.T) {
	doc := sampleDocument(t)
	doc.Original = "data:image/png;base64,AAAA"
	if _, err := Sheet(doc); err != nil {
		t.Fatalf("Sheet with broken image: %v", err)
	}
}

func TestPDF(t *testing.T) {
	doc := sampleDocument(t)
	doc.Detail = "high quality, detailed"
	var buf bytes.Buffer
	if err := PDF(doc, &buf); err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output does not look like a pdf: %.8q", buf.Bytes())
	}
}

func TestFitSize(t *testing.T) {
	w, h := fitSize(200, 100, 50, 50)
	if w != 50 || h != 25 {
		t.Fatalf("fitSize = %v x %v", w, h)
	}
}
