// Package pdfcontent turns raw PDF bytes into flattened text content. It has
// no knowledge of invoice semantics; supplier extractors interpret its output.
package pdfcontent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// ErrNoTextLayer is returned when the document contains no extractable text,
// e.g. a pure scanned image without a text layer.
var ErrNoTextLayer = errors.New("no extractable text layer")

// Content is the flattened text of a PDF document. Lines preserves the
// original line ordering across pages so positional extractors can walk it.
type Content struct {
	Text  string
	Pages []string
	Lines []string
}

// Reader extracts text content from PDF documents
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a new PDF content reader
func NewReader(logger *zap.Logger) *Reader {
	return &Reader{logger: logger}
}

// Read extracts text content from raw PDF bytes. It is a pure function of the
// input: no side effects, no retained state.
func (r *Reader) Read(data []byte) (*Content, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return r.extract(doc)
}

// ReadFile extracts text content from a PDF file on disk
func (r *Reader) ReadFile(path string) (*Content, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("PDF file not found: %s", path)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	return r.extract(doc)
}

func (r *Reader) extract(doc *fitz.Document) (*Content, error) {
	pageCount := doc.NumPage()
	r.logger.Debug("Extracting PDF text", zap.Int("total_pages", pageCount))

	pages := make([]string, 0, pageCount)
	var all strings.Builder

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			r.logger.Warn("Failed to extract page text",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		pages = append(pages, text)
		all.WriteString(text)
	}

	content := NewContent(all.String(), pages)
	if strings.TrimSpace(content.Text) == "" {
		return nil, ErrNoTextLayer
	}

	return content, nil
}

// NewContent builds a Content from already extracted text. Extractor tests
// and non-PDF callers use it directly.
func NewContent(text string, pages []string) *Content {
	raw := strings.Split(text, "\n")
	lines := make([]string, len(raw))
	for i, line := range raw {
		lines[i] = strings.TrimSpace(line)
	}

	return &Content{
		Text:  text,
		Pages: pages,
		Lines: lines,
	}
}
