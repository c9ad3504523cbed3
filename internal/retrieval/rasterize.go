package retrieval

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ledongthuc/pdf"
)

// Rasterizer converts a PDF document into one PNG image per page, in
// document order.
type Rasterizer interface {
	Rasterize(ctx context.Context, document []byte, dpi int) ([][]byte, error)
}

// PopplerRasterizer rasterizes PDFs by shelling out to poppler's pdftoppm.
// It validates the document structure in-process first, so corrupt uploads
// are classified as decode failures without spawning a subprocess.
type PopplerRasterizer struct {
	// bin is the pdftoppm binary name or path.
	bin string
}

// NewPopplerRasterizer constructs a PopplerRasterizer, verifying that
// pdftoppm is on PATH so a missing poppler install fails at startup.
func NewPopplerRasterizer() (*PopplerRasterizer, error) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		return nil, fmt.Errorf("retrieval: pdftoppm not found on PATH (install poppler-utils): %w", err)
	}
	return &PopplerRasterizer{bin: "pdftoppm"}, nil
}

// Rasterize implements Rasterizer. A document that fails structural
// validation returns an error wrapping ErrDocumentDecode.
func (r *PopplerRasterizer) Rasterize(ctx context.Context, document []byte, dpi int) ([][]byte, error) {
	pageCount, err := decodePageCount(document)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("retrieval: %w: document has no pages", ErrDocumentDecode)
	}

	dir, err := os.MkdirTemp("", "eetutor-pages-*")
	if err != nil {
		return nil, fmt.Errorf("retrieval: create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(pdfPath, document, 0o600); err != nil {
		return nil, fmt.Errorf("retrieval: write scratch document: %w", err)
	}

	bin := r.bin
	if bin == "" {
		bin = "pdftoppm"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-png", "-r", strconv.Itoa(dpi), pdfPath, filepath.Join(dir, "page"))
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("retrieval: pdftoppm failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	// pdftoppm zero-pads page numbers to the width of the last page, so
	// lexicographic order is document order.
	paths, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, fmt.Errorf("retrieval: list page images: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("retrieval: pdftoppm produced no page images")
	}
	sort.Strings(paths)

	pages := make([][]byte, 0, len(paths))
	for _, p := range paths {
		img, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("retrieval: read page image: %w", err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// decodePageCount parses the document structure and returns its page count.
// The parser panics on some malformed inputs, so the recover is part of the
// decode contract, not paranoia about our own code.
func decodePageCount(document []byte) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			count = 0
			err = fmt.Errorf("retrieval: %w: %v", ErrDocumentDecode, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return 0, fmt.Errorf("retrieval: %w: %v", ErrDocumentDecode, err)
	}
	return reader.NumPage(), nil
}
