// Package extract turns a document file into per-page text.
package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// paragraphGap is the vertical distance between rows, in multiples of the
// row's font size, above which a blank line is emitted.
const paragraphGap = 1.5

// FileExtractor reads PDFs page by page and any other file as UTF-8 text
// whose pages are separated by form feeds.
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor { return &FileExtractor{} }

func (e *FileExtractor) Extract(ctx context.Context, path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(ctx, path)
	}
	return extractText(path)
}

func extractText(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read %s: file is not valid UTF-8 text", path)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\f"), nil
}

func extractPDF(ctx context.Context, path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("read pdf %s page %d: %w", path, i, err)
		}
		pages = append(pages, renderRows(rows))
	}
	return pages, nil
}

// renderRows writes one line per row and a blank line wherever the gap to the
// previous row suggests a paragraph break.
func renderRows(rows pdf.Rows) string {
	var b strings.Builder
	var prev int64
	for i, row := range rows {
		line, size := rowText(row)
		if i > 0 {
			gap := math.Abs(float64(prev - row.Position))
			if size > 0 && gap > paragraphGap*size {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		b.WriteString("\n")
		prev = row.Position
	}
	return b.String()
}

func rowText(row *pdf.Row) (string, float64) {
	var b strings.Builder
	size := 0.0
	for _, t := range row.Content {
		b.WriteString(t.S)
		size = math.Max(size, t.FontSize)
	}
	return strings.TrimRight(b.String(), " "), size
}
