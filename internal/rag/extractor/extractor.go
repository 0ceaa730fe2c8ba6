// Package extractor converts source files (text or PDF) into plain text for
// chunking and embedding.
package extractor

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

// Extract converts the raw bytes of a file into text. isPDF selects the PDF
// page-concatenation path; everything else is treated as text and decoded
// UTF-8-lossy so that binary noise degrades gracefully rather than erroring.
func Extract(path string, data []byte, isPDF bool) (string, error) {
	var text string
	var err error
	if isPDF {
		text, err = extractPDF(data)
		if err != nil {
			return "", err
		}
	} else {
		text = decodeLossy(data)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.New(errs.ErrPartialFailure, "extract", "no extractable content in "+path)
	}
	return text, nil
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errs.Wrap(errs.ErrPartialFailure, "extract", "cannot open PDF", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// decodeLossy decodes bytes as UTF-8, replacing invalid sequences with the
// Unicode replacement character rather than failing, since corpus files may
// carry stray non-UTF-8 bytes that shouldn't abort ingestion of an otherwise
// readable file.
func decodeLossy(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	var sb strings.Builder
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		sb.WriteRune(r)
		data = data[size:]
	}
	return sb.String()
}
