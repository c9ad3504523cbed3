package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voltlab/eetutor-go/internal/diagram"
	"github.com/voltlab/eetutor-go/internal/pipeline"
	"github.com/voltlab/eetutor-go/internal/store"
)

// fakeSolver records the request it receives and returns a canned envelope.
type fakeSolver struct {
	got *pipeline.SolveRequest
	env *pipeline.Envelope
}

func (f *fakeSolver) Solve(_ context.Context, req *pipeline.SolveRequest) *pipeline.Envelope {
	f.got = req
	return f.env
}

// successEnvelope is a minimal success result for handler tests.
func successEnvelope() *pipeline.Envelope {
	return &pipeline.Envelope{
		Success:        true,
		Question:       "find V",
		Solution:       "V = 8V",
		CircuitDiagram: &diagram.Result{Success: true, ImageBase64: "UE5H"},
		Metadata:       &pipeline.Metadata{RequestID: "req-1", NumRelevantPages: 1, TotalProcessingTime: 2.5},
	}
}

// newTestServer builds a Server around the fake solver with auth and rate
// limiting disabled unless the config says otherwise.
func newTestServer(t *testing.T, f *fakeSolver, cfg *Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10000
		cfg.RateBurst = 10000
	}
	s, err := New(f, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// solveBody builds a multipart body with a question, a pdf, and optional
// image uploads.
func solveBody(t *testing.T, question string, pdf []byte, images ...[]byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if question != "" {
		if err := w.WriteField("question", question); err != nil {
			t.Fatalf("write question: %v", err)
		}
	}
	if pdf != nil {
		fw, err := w.CreateFormFile("pdf", "textbook.pdf")
		if err != nil {
			t.Fatalf("create pdf part: %v", err)
		}
		_, _ = fw.Write(pdf)
	}
	for _, img := range images {
		fw, err := w.CreateFormFile("images", "figure.png")
		if err != nil {
			t.Fatalf("create image part: %v", err)
		}
		_, _ = fw.Write(img)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// do routes one request through the full middleware chain.
func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

// Test_Solve_Success verifies the full request round trip: multipart in,
// envelope JSON out, uploads delivered to the pipeline.
func Test_Solve_Success(t *testing.T) {
	t.Parallel()

	f := &fakeSolver{env: successEnvelope()}
	s := newTestServer(t, f, nil)

	body, contentType := solveBody(t, "find V", []byte("%PDF-1.7"), []byte("fig"))
	req := httptest.NewRequest(http.MethodPost, "/api/solve", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var env pipeline.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Success || env.Solution != "V = 8V" {
		t.Errorf("envelope: got %+v", env)
	}

	if f.got.Question != "find V" {
		t.Errorf("question delivered: %q", f.got.Question)
	}
	if string(f.got.Document) != "%PDF-1.7" {
		t.Errorf("document delivered: %q", f.got.Document)
	}
	if len(f.got.UserImages) != 1 || string(f.got.UserImages[0]) != "fig" {
		t.Errorf("images delivered: %v", f.got.UserImages)
	}
}

// Test_Solve_FailureEnvelopeStays200 verifies that a pipeline failure is a
// handled response, not an HTTP error.
func Test_Solve_FailureEnvelopeStays200(t *testing.T) {
	t.Parallel()

	f := &fakeSolver{env: &pipeline.Envelope{
		Success:  false,
		Question: "q",
		Error:    "index document: document decode failure",
		Metadata: &pipeline.Metadata{RequestID: "req-2"},
	}}
	s := newTestServer(t, f, nil)

	body, contentType := solveBody(t, "q", []byte("junk"))
	req := httptest.NewRequest(http.MethodPost, "/api/solve", body)
	req.Header.Set("Content-Type", contentType)

	rec := do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var env pipeline.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Success || env.Error == "" {
		t.Errorf("expected failure envelope, got %+v", env)
	}
}

// Test_Solve_TopKOverride verifies the top_k form field reaches the pipeline
// and that a negative value is rejected before the pipeline runs.
func Test_Solve_TopKOverride(t *testing.T) {
	t.Parallel()

	f := &fakeSolver{env: successEnvelope()}
	s := newTestServer(t, f, nil)

	body, contentType := solveBody(t, "find V", []byte("%PDF-1.7"))
	req := httptest.NewRequest(http.MethodPost, "/api/solve?top_k=5", body)
	req.Header.Set("Content-Type", contentType)

	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if f.got.TopK != 5 {
		t.Errorf("top_k delivered: got %d, want 5", f.got.TopK)
	}

	f2 := &fakeSolver{env: successEnvelope()}
	s2 := newTestServer(t, f2, nil)
	body, contentType = solveBody(t, "find V", []byte("%PDF-1.7"))
	req = httptest.NewRequest(http.MethodPost, "/api/solve?top_k=-1", body)
	req.Header.Set("Content-Type", contentType)

	if rec := do(s2, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status: expected 400, got %d", rec.Code)
	}
	if f2.got != nil {
		t.Error("pipeline must not run for an invalid top_k")
	}
}

// Test_Solve_MissingQuestion verifies request validation.
func Test_Solve_MissingQuestion(t *testing.T) {
	t.Parallel()

	f := &fakeSolver{env: successEnvelope()}
	s := newTestServer(t, f, nil)

	body, contentType := solveBody(t, "", []byte("%PDF-1.7"))
	req := httptest.NewRequest(http.MethodPost, "/api/solve", body)
	req.Header.Set("Content-Type", contentType)

	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status: expected 400, got %d", rec.Code)
	}
	if f.got != nil {
		t.Error("pipeline must not run for an invalid request")
	}
}

// Test_Solve_MissingPDF verifies that the document upload is mandatory.
func Test_Solve_MissingPDF(t *testing.T) {
	t.Parallel()

	f := &fakeSolver{env: successEnvelope()}
	s := newTestServer(t, f, nil)

	body, contentType := solveBody(t, "q", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/solve", body)
	req.Header.Set("Content-Type", contentType)

	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status: expected 400, got %d", rec.Code)
	}
}

// Test_Solve_RecordsHistory verifies that a completed solve lands in the
// history store with the envelope's summary fields.
func Test_Solve_RecordsHistory(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	f := &fakeSolver{env: successEnvelope()}
	s := newTestServer(t, f, &Config{History: hist})

	body, contentType := solveBody(t, "find V", []byte("%PDF-1.7"))
	req := httptest.NewRequest(http.MethodPost, "/api/solve", body)
	req.Header.Set("Content-Type", contentType)
	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}

	recs, err := hist.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("want 1 history record, got %d", len(recs))
	}
	if recs[0].RequestID != "req-1" || !recs[0].Success || !recs[0].DiagramOK {
		t.Errorf("history record: got %+v", recs[0])
	}
}

// Test_History_Endpoint verifies GET /api/history returns the stored records.
func Test_History_Endpoint(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })
	if err := hist.Append(context.Background(), store.Record{RequestID: "r1", Question: "q1", Success: true}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s := newTestServer(t, &fakeSolver{env: successEnvelope()}, &Config{History: hist})

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp historyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].RequestID != "r1" {
		t.Errorf("records: got %+v", resp.Records)
	}
}

// Test_History_Disabled verifies the 404 when no store is wired.
func Test_History_Disabled(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeSolver{env: successEnvelope()}, nil)
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/api/history", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("status: expected 404, got %d", rec.Code)
	}
}

// Test_History_BadLimit verifies limit validation.
func Test_History_BadLimit(t *testing.T) {
	t.Parallel()

	hist, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	s := newTestServer(t, &fakeSolver{env: successEnvelope()}, &Config{History: hist})
	if rec := do(s, httptest.NewRequest(http.MethodGet, "/api/history?limit=zero", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("status: expected 400, got %d", rec.Code)
	}
}

// Test_Health verifies the liveness endpoint.
func Test_Health(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeSolver{env: successEnvelope()}, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status: expected 200, got %d", rec.Code)
	}
}

// Test_Metrics_Endpoint verifies that /metrics serves the injected registry.
func Test_Metrics_Endpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeSolver{env: successEnvelope()}, nil)

	// Generate one instrumented request first.
	do(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("eetutor_http_requests_total")) {
		t.Error("metrics output missing eetutor_http_requests_total")
	}
}
