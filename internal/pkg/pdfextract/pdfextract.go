package pdfextract

import (
	"bytes"
	"io"

	"github.com/ledongthuc/pdf"
)

// Result carries the extracted plain text along with the page count,
// which retrieval uses to estimate chunk page numbers.
type Result struct {
	Text      string
	PageCount int
}

// Extract reads the entire content of r and pulls plain text out of the
// PDF. A PDF with no extractable text yields an empty Text and nil error;
// the caller decides whether that is fatal.
func Extract(r io.Reader) (*Result, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return &Result{}, nil
	}
	readerAt := bytes.NewReader(b)
	pdfReader, err := pdf.NewReader(readerAt, int64(len(b)))
	if err != nil {
		return nil, err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return nil, err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return nil, err
	}
	return &Result{Text: string(out), PageCount: pdfReader.NumPage()}, nil
}
