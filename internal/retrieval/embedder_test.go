package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newEmbedServer returns a test server implementing both embedding routes
// with canned responses.
func newEmbedServer(t *testing.T, imagesStatus int, imagesBody string, queryBody string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/embed/images", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("images route: expected POST, got %s", r.Method)
		}
		var req embedImagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("images route: bad request body: %v", err)
		}
		if req.Model == "" {
			t.Error("images route: model missing from request")
		}
		w.WriteHeader(imagesStatus)
		_, _ = w.Write([]byte(imagesBody))
	})
	mux.HandleFunc("/embed/query", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(queryBody))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// TestColPaliClient_EmbedImages verifies the request/response round trip for
// image embedding.
func TestColPaliClient_EmbedImages(t *testing.T) {
	t.Parallel()

	srv := newEmbedServer(t, http.StatusOK,
		`{"embeddings": [[[0.1, 0.2]], [[0.3, 0.4]]]}`,
		`{"embedding": [[1]]}`,
	)
	c := NewColPaliClient(&ColPaliConfig{Endpoint: srv.URL})

	got, err := c.EmbedImages(context.Background(), [][]byte{[]byte("a"), []byte("b")})
	if err != nil {
		t.Fatalf("EmbedImages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	if got[1][0][1] != 0.4 {
		t.Errorf("embedding values: got %v", got[1])
	}
}

// TestColPaliClient_EmbedImages_CountMismatch verifies that a response with
// the wrong number of embeddings is rejected.
func TestColPaliClient_EmbedImages_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := newEmbedServer(t, http.StatusOK, `{"embeddings": [[[0.1]]]}`, `{}`)
	c := NewColPaliClient(&ColPaliConfig{Endpoint: srv.URL})

	if _, err := c.EmbedImages(context.Background(), [][]byte{[]byte("a"), []byte("b")}); err == nil {
		t.Error("expected error for embedding count mismatch")
	}
}

// TestColPaliClient_EmbedImages_ServerError verifies HTTP error handling.
func TestColPaliClient_EmbedImages_ServerError(t *testing.T) {
	t.Parallel()

	srv := newEmbedServer(t, http.StatusInternalServerError, `model OOM`, `{}`)
	c := NewColPaliClient(&ColPaliConfig{Endpoint: srv.URL})

	if _, err := c.EmbedImages(context.Background(), [][]byte{[]byte("a")}); err == nil {
		t.Error("expected error for HTTP 500 response")
	}
}

// TestColPaliClient_EmbedQuery verifies the query embedding round trip and
// the empty-embedding guard.
func TestColPaliClient_EmbedQuery(t *testing.T) {
	t.Parallel()

	srv := newEmbedServer(t, http.StatusOK, `{}`, `{"embedding": [[0.5, 0.5], [1, 0]]}`)
	c := NewColPaliClient(&ColPaliConfig{Endpoint: srv.URL})

	got, err := c.EmbedQuery(context.Background(), "what is a thevenin equivalent")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(got) != 2 || got[1][0] != 1 {
		t.Errorf("embedding values: got %v", got)
	}
}

// TestColPaliClient_EmbedQuery_EmptyEmbedding verifies that an empty result
// is treated as a failure rather than silently scoring everything zero.
func TestColPaliClient_EmbedQuery_EmptyEmbedding(t *testing.T) {
	t.Parallel()

	srv := newEmbedServer(t, http.StatusOK, `{}`, `{"embedding": []}`)
	c := NewColPaliClient(&ColPaliConfig{Endpoint: srv.URL})

	if _, err := c.EmbedQuery(context.Background(), "q"); err == nil {
		t.Error("expected error for empty query embedding")
	}
}

// TestColPaliClient_Defaults verifies the default endpoint and model.
func TestColPaliClient_Defaults(t *testing.T) {
	t.Parallel()

	c := NewColPaliClient(nil)
	if c.Endpoint() != "http://localhost:8002" {
		t.Errorf("default endpoint: got %q", c.Endpoint())
	}
	if c.model != "vidore/colpali-v1.3" {
		t.Errorf("default model: got %q", c.model)
	}
}
