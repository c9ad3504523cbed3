package pipeline

import "github.com/voltlab/eetutor-go/internal/diagram"

// SolveRequest is the orchestrator's input: one question, one textbook PDF,
// and optional user-uploaded figures (PNG-encoded).
type SolveRequest struct {
	// Question is the user's question text.
	Question string
	// Document is the raw uploaded PDF.
	Document []byte
	// UserImages holds figures the user attached to the question.
	UserImages [][]byte
	// TopK overrides the number of retrieved pages when positive.
	TopK int
}

// Envelope is the single structured result returned to the caller. It is
// assembled once and never mutated.
//
// Success reflects the pipeline, not the diagram: a request whose generated
// diagram failed to compile still carries Success=true with the failure
// nested under CircuitDiagram, because a usable textual solution was already
// produced. Success=false means an earlier stage failed and Solution and
// CircuitDiagram are absent.
type Envelope struct {
	// Success reports whether the pipeline produced a solution.
	Success bool `json:"success"`
	// Question echoes the user's question.
	Question string `json:"question"`
	// Solution is the reasoning stage's answer text.
	Solution string `json:"textual_solution,omitempty"`
	// CircuitDiagram is the diagram compile outcome, success or failure.
	CircuitDiagram *diagram.Result `json:"circuit_diagram,omitempty"`
	// Error is the failure message when Success is false.
	Error string `json:"error,omitempty"`
	// Metadata carries per-run observability data.
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata is the per-run record attached to every envelope, success or not.
type Metadata struct {
	// RequestID uniquely identifies this run across logs and responses.
	RequestID string `json:"request_id"`
	// NumRelevantPages is the number of textbook pages given to the
	// reasoning stage.
	NumRelevantPages int `json:"num_relevant_pages"`
	// HasUserImages reports whether the user attached figures.
	HasUserImages bool `json:"has_user_images"`
	// GeneratedCode is the diagram program handed to the compiler.
	GeneratedCode string `json:"generated_code,omitempty"`
	// TotalProcessingTime is the end-to-end latency in seconds.
	TotalProcessingTime float64 `json:"total_processing_time"`
	// StageSeconds maps each executed stage to its elapsed seconds.
	StageSeconds map[string]float64 `json:"stage_seconds,omitempty"`
}
