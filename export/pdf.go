package export

import (
	"bytes"
	"fmt"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin   = 12.0
	pdfGap      = 6.0
	pdfHeaderMM = 22.0
	pdfLabelMM  = 7.0
)

// PDF writes a single A4 landscape page with the original, every variant
// and the generation metadata.
func PDF(doc Document, w io.Writer) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	p.SetAutoPageBreak(false, pdfMargin)
	p.AddPage()
	tr := p.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := p.GetPageSize()

	p.SetFont("Helvetica", "B", 16)
	p.CellFormat(0, 9, tr(doc.Title), "", 1, "L", false, 0, "")
	p.SetFont("Helvetica", "", 10)
	meta := fmt.Sprintf("Style: %s   Category: %s", doc.Style, doc.Category)
	if !doc.CreatedAt.IsZero() {
		meta += "   Created: " + doc.CreatedAt.UTC().Format("2006-01-02 15:04 MST")
	}
	p.CellFormat(0, 6, tr(meta), "", 1, "L", false, 0, "")

	panels := doc.panels()
	cols := float64(len(panels))
	slotW := (pageW - 2*pdfMargin - (cols-1)*pdfGap) / cols
	slotH := pageH - 2*pdfMargin - pdfHeaderMM - pdfLabelMM
	if doc.Detail != "" {
		slotH -= 12
	}
	top := pdfMargin + pdfHeaderMM

	for i, pnl := range panels {
		x := pdfMargin + float64(i)*(slotW+pdfGap)

		p.SetFont("Helvetica", "B", 10)
		p.SetXY(x, top)
		p.CellFormat(slotW, pdfLabelMM, tr(pnl.label), "", 0, "C", false, 0, "")

		imgTop := top + pdfLabelMM
		if pnl.img == nil {
			p.SetFillColor(238, 238, 238)
			p.Rect(x, imgTop, slotW, slotW, "F")
			continue
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, pnl.img); err != nil {
			return fmt.Errorf("export: encode %s: %w", pnl.label, err)
		}
		name := fmt.Sprintf("panel-%d", i)
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
		p.RegisterImageOptionsReader(name, opts, &buf)

		b := pnl.img.Bounds()
		iw, ih := fitSize(float64(b.Dx()), float64(b.Dy()), slotW, slotH)
		p.ImageOptions(name, x+(slotW-iw)/2, imgTop, iw, ih, false, opts, 0, "")
	}

	if doc.Detail != "" {
		p.SetFont("Helvetica", "I", 9)
		p.SetXY(pdfMargin, pageH-pdfMargin-12)
		p.MultiCell(pageW-2*pdfMargin, 5, tr(doc.Detail), "", "L", false)
	}

	if err := p.Error(); err != nil {
		return fmt.Errorf("export: build pdf: %w", err)
	}
	if err := p.Output(w); err != nil {
		return fmt.Errorf("export: write pdf: %w", err)
	}
	return nil
}
