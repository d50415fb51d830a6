package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrEmptyDocument is returned for PDFs without any page text.
var ErrEmptyDocument = errors.New("pdftext: document has no text")

// Reader turns invoice PDFs into plain text, one line per text row.
type Reader struct{}

// NewReader returns a PDF text reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadFile extracts the text of the PDF at path.
func (r *Reader) ReadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return r.Read(f)
}

// Read extracts the text of every page, pages separated by a blank line.
func (r *Reader) Read(src io.Reader) (string, error) {
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(src)
	if err != nil {
		return "", err
	}
	doc, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), size)
	if err != nil {
		return "", fmt.Errorf("pdftext: open: %w", err)
	}

	var out strings.Builder
	for i := 1; i <= doc.NumPage(); i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("pdftext: page %d: %w", i, err)
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				if s := strings.TrimSpace(word.S); s != "" {
					words = append(words, s)
				}
			}
			if len(words) > 0 {
				out.WriteString(strings.Join(words, " "))
				out.WriteString("\n")
			}
		}
		out.WriteString("\n")
	}
	text := out.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}
