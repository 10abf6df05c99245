// Package extractor turns image-based statements (scanned PDFs, photos) into
// normalized transactions by way of the vision model.
package extractor

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// PDFInfo is what the text layer of a PDF tells us before OCR.
type PDFInfo struct {
	Pages int
	// Text is the embedded text layer, one entry per page. Empty for scans.
	Text []string
}

// Readable reports whether the text layer is good enough to pass to the
// model as a hint.
func (i PDFInfo) Readable() bool {
	return isReadableText(i.Text)
}

// Inspect opens an in-memory PDF, counts its pages and pulls the text layer.
// Encrypted or corrupt files fail here, before anything is rendered.
func Inspect(data []byte) (info PDFInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return PDFInfo{}, fmt.Errorf("opening PDF: %w", err)
	}

	info.Pages = r.NumPage()
	if info.Pages == 0 {
		return PDFInfo{}, fmt.Errorf("PDF has no pages")
	}
	info.Text = extractByRow(r, info.Pages)
	return info, nil
}

// extractByRow rebuilds each page's lines from the library's row grouping.
func extractByRow(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

// textQuality returns the ratio of readable characters to total characters.
// Latin letters with accents count as readable; control and private-use
// runes from broken font maps do not.
func textQuality(pages []string) float64 {
	total := 0
	readable := 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if unicode.In(r, unicode.Latin, unicode.Digit, unicode.Space, unicode.Punct) || r == '$' {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords that appear in virtually all bank statements.
var commonWords = []string{
	"banco", "cuenta", "saldo", "fecha", "valor", "extracto", "movimientos",
	"bank", "account", "balance", "date", "statement", "total", "amount",
}

func containsCommonWords(pages []string) bool {
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range commonWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// isReadableText requires >50 chars, >60% readable characters and at least
// one word expected on a statement.
func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return containsCommonWords(pages)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
