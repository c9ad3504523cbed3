package retrieval

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Embedder computes multi-vector embeddings for page images and text queries.
// A multi-vector embedding is a sequence of patch/token vectors, not a single
// pooled vector — relevance is computed with late interaction, not cosine.
type Embedder interface {
	// EmbedImages embeds a batch of PNG-encoded page images. The result is
	// parallel to the input: one multi-vector embedding per image.
	EmbedImages(ctx context.Context, images [][]byte) ([][][]float32, error)
	// EmbedQuery embeds a text query into its multi-vector representation.
	EmbedQuery(ctx context.Context, query string) ([][]float32, error)
}

// ColPali client defaults. Embedding a batch of page images on GPU is
// seconds, not minutes.
const (
	defaultEmbeddingEndpoint = "http://localhost:8002"
	defaultEmbeddingModel    = "vidore/colpali-v1.3"
	embedRequestTimeout      = 120 * time.Second
)

// ColPaliConfig holds the embedding service settings.
type ColPaliConfig struct {
	// Endpoint is the base URL of the embedding service.
	Endpoint string
	// Model is the embedding model name forwarded to the service.
	Model string
}

// ColPaliClient talks to the ColPali embedding service over its JSON API.
// The API is two routes and stable, so a plain HTTP client keeps the
// dependency surface small — no SDK needed.
type ColPaliClient struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewColPaliClient constructs a client, filling empty config fields with
// defaults.
func NewColPaliClient(cfg *ColPaliConfig) *ColPaliClient {
	if cfg == nil {
		cfg = &ColPaliConfig{}
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEmbeddingEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &ColPaliClient{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: embedRequestTimeout},
	}
}

// NewColPaliClientFromEnv constructs a client from EMBEDDING_ENDPOINT and
// EMBEDDING_MODEL.
func NewColPaliClientFromEnv() *ColPaliClient {
	return NewColPaliClient(&ColPaliConfig{
		Endpoint: os.Getenv("EMBEDDING_ENDPOINT"),
		Model:    os.Getenv("EMBEDDING_MODEL"),
	})
}

// Endpoint returns the configured base URL, for readiness probing.
func (c *ColPaliClient) Endpoint() string {
	return c.endpoint
}

type embedImagesRequest struct {
	// Model is the embedding model name.
	Model string `json:"model"`
	// Images holds base64-encoded PNG page images.
	Images []string `json:"images"`
}

type embedImagesResponse struct {
	// Embeddings holds one multi-vector embedding per input image.
	Embeddings [][][]float32 `json:"embeddings"`
	// Error carries a service-side failure description, if any.
	Error string `json:"error,omitempty"`
}

type embedQueryRequest struct {
	Model string `json:"model"`
	Query string `json:"query"`
}

type embedQueryResponse struct {
	Embedding [][]float32 `json:"embedding"`
	Error     string      `json:"error,omitempty"`
}

// EmbedImages implements Embedder against the service's /embed/images route.
func (c *ColPaliClient) EmbedImages(ctx context.Context, images [][]byte) ([][][]float32, error) {
	encoded := make([]string, len(images))
	for i, img := range images {
		encoded[i] = base64.StdEncoding.EncodeToString(img)
	}

	var out embedImagesResponse
	if err := c.post(ctx, "/embed/images", embedImagesRequest{Model: c.model, Images: encoded}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("retrieval: embedding service error: %s", out.Error)
	}
	if len(out.Embeddings) != len(images) {
		return nil, fmt.Errorf("retrieval: embedding service returned %d embeddings for %d images",
			len(out.Embeddings), len(images))
	}
	return out.Embeddings, nil
}

// EmbedQuery implements Embedder against the service's /embed/query route.
func (c *ColPaliClient) EmbedQuery(ctx context.Context, query string) ([][]float32, error) {
	var out embedQueryResponse
	if err := c.post(ctx, "/embed/query", embedQueryRequest{Model: c.model, Query: query}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("retrieval: embedding service error: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("retrieval: embedding service returned empty query embedding")
	}
	return out.Embedding, nil
}

// post issues one JSON request/response round trip against the service.
func (c *ColPaliClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("retrieval: marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("retrieval: create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("retrieval: call embedding service %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("retrieval: embedding service %s returned HTTP %d: %s",
			path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("retrieval: decode %s response: %w", path, err)
	}
	return nil
}
