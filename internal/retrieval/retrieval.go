// Package retrieval implements visual retrieval over an uploaded textbook
// PDF: pages are rasterized to images, embedded as multi-vector
// representations by a remote ColPali-style embedding service, and scored
// against the user's query with late-interaction similarity.
//
// The two operations have a strict ordering dependency made explicit by the
// types: [Engine.Index] returns an opaque [*PageIndex] that [Engine.TopK]
// requires as an argument, so scoring cannot be attempted before indexing.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/voltlab/eetutor-go/internal/logging"
)

// ErrDocumentDecode classifies a document that could not be parsed as a PDF.
// Fatal — there is nothing to retry.
var ErrDocumentDecode = errors.New("document decode failure")

// ErrScoring classifies an embedding or similarity failure during query
// scoring.
var ErrScoring = errors.New("retrieval scoring failure")

// Defaults matching the deployed configuration: small batches bound the
// embedding server's peak memory; three pages of context fit comfortably in
// the reasoning model's window.
const (
	defaultBatchSize = 4
	defaultTopK      = 3
	defaultRenderDPI = 150
)

// Config holds the retrieval engine settings.
type Config struct {
	// BatchSize is the number of pages embedded per request.
	BatchSize int
	// TopK is the default number of pages returned when the caller passes 0.
	TopK int
	// RenderDPI is the resolution at which pages are rasterized.
	RenderDPI int
}

// Engine converts documents into page indexes and scores queries against
// them. It is safe for concurrent use; each request builds its own PageIndex.
type Engine struct {
	// embedder computes multi-vector embeddings for page images and queries.
	embedder Embedder
	// rasterizer converts PDF bytes into per-page PNG images.
	rasterizer Rasterizer
	// cfg holds the resolved engine configuration.
	cfg Config
}

// NewEngine constructs an Engine from the given dependencies and config.
func NewEngine(embedder Embedder, rasterizer Rasterizer, cfg *Config) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if rasterizer == nil {
		return nil, fmt.Errorf("retrieval: rasterizer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := *cfg
	if resolved.BatchSize <= 0 {
		resolved.BatchSize = defaultBatchSize
	}
	if resolved.TopK <= 0 {
		resolved.TopK = defaultTopK
	}
	if resolved.RenderDPI <= 0 {
		resolved.RenderDPI = defaultRenderDPI
	}
	return &Engine{embedder: embedder, rasterizer: rasterizer, cfg: resolved}, nil
}

// PageIndex is the per-request index built from one document: an ordered
// sequence of (page image, multi-vector embedding) pairs, one per page.
// It is immutable once built and discarded at request end.
type PageIndex struct {
	// pages holds the PNG-encoded page images in document order.
	pages [][]byte
	// embeddings is parallel to pages — embeddings[i] is the multi-vector
	// representation of pages[i].
	embeddings [][][]float32
}

// Len returns the number of indexed pages.
func (idx *PageIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.pages)
}

// Index rasterizes the document into page images and embeds them in
// fixed-size batches. Returns ErrDocumentDecode (wrapped) if the input is
// not a parseable PDF. The returned index satisfies
// len(embeddings) == page count.
func (e *Engine) Index(ctx context.Context, document []byte) (*PageIndex, error) {
	log := logging.FromContext(ctx)

	pages, err := e.rasterizer.Rasterize(ctx, document, e.cfg.RenderDPI)
	if err != nil {
		return nil, fmt.Errorf("retrieval: rasterize document: %w", err)
	}
	log.Debug("retrieval: document rasterized", slog.Int("pages", len(pages)))

	embeddings := make([][][]float32, 0, len(pages))
	for start := 0; start < len(pages); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(pages) {
			end = len(pages)
		}
		batch, err := e.embedder.EmbedImages(ctx, pages[start:end])
		if err != nil {
			return nil, fmt.Errorf("retrieval: embed pages %d..%d: %w", start, end-1, err)
		}
		embeddings = append(embeddings, batch...)
	}

	if len(embeddings) != len(pages) {
		return nil, fmt.Errorf("retrieval: expected %d embeddings, got %d", len(pages), len(embeddings))
	}

	log.Debug("retrieval: index built", slog.Int("pages", len(pages)))
	return &PageIndex{pages: pages, embeddings: embeddings}, nil
}

// TopK embeds the query, scores it against every indexed page with
// late-interaction similarity, and returns the k most relevant page images
// ordered by descending score (ties keep original page order). k <= 0 uses
// the configured default; k greater than the page count returns all pages.
// Embedding or scoring failures are wrapped with ErrScoring.
func (e *Engine) TopK(ctx context.Context, query string, idx *PageIndex, k int) ([][]byte, error) {
	if idx == nil {
		return nil, fmt.Errorf("retrieval: %w: page index must not be nil", ErrScoring)
	}
	if k <= 0 {
		k = e.cfg.TopK
	}

	queryEmbedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w: %v", ErrScoring, err)
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("retrieval: %w: embedder returned empty query embedding", ErrScoring)
	}

	scores := make([]float32, idx.Len())
	for i, pageEmbedding := range idx.embeddings {
		scores[i] = maxSim(queryEmbedding, pageEmbedding)
	}

	order := make([]int, idx.Len())
	for i := range order {
		order[i] = i
	}
	// Stable keeps the original page order for equal scores.
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > idx.Len() {
		k = idx.Len()
	}

	result := make([][]byte, 0, k)
	for _, pageIdx := range order[:k] {
		result = append(result, idx.pages[pageIdx])
	}

	logging.FromContext(ctx).Debug("retrieval: pages selected",
		slog.Int("k", k),
		slog.Int("indexed", idx.Len()),
	)
	return result, nil
}
