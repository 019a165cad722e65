package services

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DefaultPageLimit caps how many PDF pages are extracted before truncating.
const DefaultPageLimit = 30

type PDFService struct {
	pageLimit int
}

func NewPDFService(pageLimit int) *PDFService {
	if pageLimit <= 0 {
		pageLimit = DefaultPageLimit
	}
	return &PDFService{pageLimit: pageLimit}
}

// ExtractText pulls plain text out of a PDF stream. Extraction stops at the
// page limit; when pages remain a truncation note is appended so the user
// knows the material was cut. Pages that fail to decode are skipped rather
// than failing the whole document.
func (s *PDFService) ExtractText(src io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return "", fmt.Errorf("read pdf: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := reader.NumPage()
	limit := pages
	if limit > s.pageLimit {
		limit = s.pageLimit
	}

	var out strings.Builder
	for i := 1; i <= limit; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		out.WriteString(content)
		out.WriteString("\n\n")
	}

	if pages > s.pageLimit {
		fmt.Fprintf(&out, "\n\n[Note: Truncated at %d pages of %d.]", s.pageLimit, pages)
	}

	return strings.TrimSpace(out.String()), nil
}
