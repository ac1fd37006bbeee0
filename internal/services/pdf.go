package services

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"

	"voicecard/internal/domain"
)

const (
	sheetColumns = 3
	sheetRows    = 4
	sheetMargin  = 12.0
	qrSize       = 38.0
	qrPixels     = 320
)

// PrintSheet lays out provisioned cards as a printable grid of QR codes, one
// cell per page with its code written underneath.
type PrintSheet struct {
	title string
	now   func() time.Time
}

func NewPrintSheet(title string) *PrintSheet {
	if strings.TrimSpace(title) == "" {
		title = "Voicecard codes"
	}
	return &PrintSheet{title: title, now: time.Now}
}

func (s *PrintSheet) Write(w io.Writer, pages []domain.AudioPage) error {
	if len(pages) == 0 {
		return fmt.Errorf("%w: no pages to print", domain.ErrValidation)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(s.title, false)
	pdf.SetAuthor("voicecard", false)
	pdf.SetMargins(sheetMargin, sheetMargin, sheetMargin)
	pdf.SetAutoPageBreak(false, sheetMargin)

	pageWidth, pageHeight := pdf.GetPageSize()
	cellWidth := (pageWidth - 2*sheetMargin) / sheetColumns
	cellHeight := (pageHeight - 2*sheetMargin - 10) / sheetRows
	perSheet := sheetColumns * sheetRows

	for i, page := range pages {
		slot := i % perSheet
		if slot == 0 {
			s.addSheet(pdf, i/perSheet+1, (len(pages)+perSheet-1)/perSheet)
		}

		col := slot % sheetColumns
		row := slot / sheetColumns
		x := sheetMargin + float64(col)*cellWidth
		y := sheetMargin + 10 + float64(row)*cellHeight

		if err := s.drawCell(pdf, page, x, y, cellWidth, cellHeight); err != nil {
			return err
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (s *PrintSheet) addSheet(pdf *gofpdf.Fpdf, number, total int) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(sheetMargin, sheetMargin)
	pdf.Cell(0, 6, s.title)
	pdf.SetFont("Helvetica", "", 8)
	pdf.SetXY(sheetMargin, sheetMargin)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s  -  %d/%d", s.now().Format("2006-01-02"), number, total), "", 0, "R", false, 0, "")
}

func (s *PrintSheet) drawCell(pdf *gofpdf.Fpdf, page domain.AudioPage, x, y, w, h float64) error {
	png, err := qrcode.Encode(page.PageURL, qrcode.Medium, qrPixels)
	if err != nil {
		return fmt.Errorf("encode qr for %s: %w", page.Code, err)
	}

	name := "qr-" + page.Code
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register qr for %s: %w", page.Code, err)
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Rect(x+1, y+1, w-2, h-2, "D")
	pdf.ImageOptions(name, x+(w-qrSize)/2, y+4, qrSize, qrSize, false, opts, 0, "")

	pdf.SetFont("Courier", "B", 14)
	pdf.SetXY(x, y+qrSize+6)
	pdf.CellFormat(w, 7, page.Code, "", 2, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetX(x)
	pdf.CellFormat(w, 4, page.PageURL, "", 0, "C", false, 0, "")
	return nil
}
