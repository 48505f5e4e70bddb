package pageindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageSource reads page counts and page text from a document.
type PageSource interface {
	// PageCount returns the number of pages in the document.
	PageCount(ctx context.Context, path string) (int, error)
	// PageTexts returns the text of pages first..last (1-based, inclusive).
	PageTexts(ctx context.Context, path string, first, last int) ([]string, error)
}

// PDFReader counts pages with pdfcpu and extracts text with pdftotext
// (poppler-utils).
type PDFReader struct {
	pdftotext string
}

// NewPDFReader returns a PDFReader using pdftotext from PATH.
func NewPDFReader() *PDFReader {
	return &PDFReader{pdftotext: "pdftotext"}
}

// PageCount reads the page count from the PDF's page tree.
func (r *PDFReader) PageCount(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	count, err := api.PageCount(f, conf)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}
	return count, nil
}

// PageTexts extracts the text of a page range in one pdftotext call.
func (r *PDFReader) PageTexts(ctx context.Context, path string, first, last int) ([]string, error) {
	if first < 1 || last < first {
		return nil, fmt.Errorf("invalid page range %d..%d", first, last)
	}
	if _, err := exec.LookPath(r.pdftotext); err != nil {
		return nil, fmt.Errorf("pdftotext not found: install poppler-utils (brew install poppler on macOS)")
	}

	cmd := exec.CommandContext(ctx, r.pdftotext,
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		"-layout", path, "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pdftotext pages %d-%d: %s", first, last, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("pdftotext pages %d-%d: %w", first, last, err)
	}

	return splitPages(string(output), last-first+1), nil
}

// splitPages splits pdftotext output on form feeds into exactly n pages.
func splitPages(output string, n int) []string {
	parts := strings.Split(output, "\f")
	pages := make([]string, n)
	for i := 0; i < n && i < len(parts); i++ {
		pages[i] = parts[i]
	}
	return pages
}
