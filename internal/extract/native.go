// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/pdf2shp/pkg/types"
)

// gapFactor is the horizontal gap, as a fraction of the font size, above
// which two text runs on the same row are separated by a space.
const gapFactor = 0.25

// NativeExtractor reads PDFs with the pure Go ledongthuc/pdf reader.
type NativeExtractor struct{}

// NewNativeExtractor returns the default extractor.
func NewNativeExtractor() *NativeExtractor { return &NativeExtractor{} }

func (n *NativeExtractor) Name() string { return string(types.BackendNative) }

// Extract reads every page of pdfPath. The reader panics on some malformed
// files, so panics are turned into errors.
func (n *NativeExtractor) Extract(ctx context.Context, pdfPath string) (pages []types.PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("reading PDF %s: malformed document: %v", pdfPath, r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	total := r.NumPage()
	pages = make([]types.PageText, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, types.PageText{Number: i})
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("reading page %d of %s: %w", i, pdfPath, err)
		}
		pages = append(pages, types.PageText{Number: i, Text: rowsText(rows)})
	}
	return pages, nil
}

// rowsText renders rows top to bottom, one line per row.
func rowsText(rows pdf.Rows) string {
	sorted := make([]*pdf.Row, len(rows))
	copy(sorted, rows)
	// PDF user space grows upward, so the top row has the largest position.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position > sorted[j].Position })

	lines := make([]string, 0, len(sorted))
	for _, row := range sorted {
		lines = append(lines, joinRow(row.Content))
	}
	return strings.Join(lines, "\n")
}

// joinRow concatenates the text runs of one row left to right, inserting
// a space wherever the runs are visibly apart.
func joinRow(words []pdf.Text) string {
	sorted := make([]pdf.Text, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var b strings.Builder
	for i, w := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			gap := w.X - (prev.X + prev.W)
			if gap > prev.FontSize*gapFactor && !strings.HasSuffix(b.String(), " ") && !strings.HasPrefix(w.S, " ") {
				b.WriteByte(' ')
			}
		}
		b.WriteString(w.S)
	}
	return strings.TrimRight(b.String(), " ")
}
