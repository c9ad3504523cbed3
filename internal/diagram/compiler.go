// Package diagram executes model-generated schemdraw programs and rasterizes
// the result. This is a trust boundary: the program text comes from a model,
// not a developer, so each compile runs in its own short-lived interpreter
// process with a hard wall-clock budget, and every failure is captured into
// the result rather than raised.
package diagram

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/voltlab/eetutor-go/internal/logging"
)

// Compile defaults. The DPI matches the page-render resolution; the budget
// is generous because matplotlib's first import in a cold process is slow.
const (
	defaultPythonBin = "python3"
	defaultDPI       = 150
	defaultTimeout   = 60 * time.Second
)

// Config holds the compiler settings.
type Config struct {
	// PythonBin is the Python interpreter binary name or path. It must have
	// schemdraw and matplotlib installed.
	PythonBin string
	// DPI is the raster resolution of the output image.
	DPI int
	// Timeout is the wall-clock budget for one compile, covering interpreter
	// startup, execution, and rendering.
	Timeout time.Duration
}

// Result is the structured outcome of one compile. Exactly one of the
// success and failure field sets is populated, never both.
type Result struct {
	// Success reports whether the program executed and rendered cleanly.
	Success bool `json:"success"`
	// ImageBase64 is the base64-encoded PNG, present only on success.
	ImageBase64 string `json:"image_base64,omitempty"`
	// Stdout is everything the program printed.
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the program's stderr on success (warnings and the like).
	Stderr string `json:"stderr,omitempty"`
	// Error is a short human-readable failure message, present only on
	// failure.
	Error string `json:"error,omitempty"`
	// Traceback is the full stack trace of the failure.
	Traceback string `json:"traceback,omitempty"`
	// Code echoes the program that was executed, for debugging.
	Code string `json:"schemdraw_code,omitempty"`
}

// Compiler runs generated programs. Safe for concurrent use — each compile
// gets its own scratch directory and process.
type Compiler struct {
	cfg Config
}

// NewCompiler constructs a Compiler, verifying the interpreter exists so a
// broken deployment fails at startup instead of on the first request.
func NewCompiler(cfg *Config) (*Compiler, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := *cfg
	if resolved.PythonBin == "" {
		resolved.PythonBin = defaultPythonBin
	}
	if resolved.DPI <= 0 {
		resolved.DPI = defaultDPI
	}
	if resolved.Timeout <= 0 {
		resolved.Timeout = defaultTimeout
	}
	if _, err := exec.LookPath(resolved.PythonBin); err != nil {
		return nil, fmt.Errorf("diagram: interpreter %q not found on PATH: %w", resolved.PythonBin, err)
	}
	return &Compiler{cfg: resolved}, nil
}

// Compile executes the program and rasterizes its figure. It never returns a
// Go error for program failures — a broken program, a crash, or a timeout
// all come back as a Result with Success=false and the captured streams.
func (c *Compiler) Compile(ctx context.Context, program string) *Result {
	log := logging.FromContext(ctx)

	dir, err := os.MkdirTemp("", "eetutor-diagram-*")
	if err != nil {
		return failure(program, "create scratch dir: "+err.Error(), "")
	}
	defer os.RemoveAll(dir)

	harnessPath := filepath.Join(dir, "harness.py")
	programPath := filepath.Join(dir, "program.py")
	outPath := filepath.Join(dir, "diagram.png")
	if err := os.WriteFile(harnessPath, []byte(harness), 0o600); err != nil {
		return failure(program, "write harness: "+err.Error(), "")
	}
	if err := os.WriteFile(programPath, []byte(program), 0o600); err != nil {
		return failure(program, "write program: "+err.Error(), "")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, c.cfg.PythonBin,
		harnessPath, programPath, outPath, strconv.Itoa(c.cfg.DPI))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		log.Warn("diagram: compile timed out", slog.Duration("budget", c.cfg.Timeout))
		res := failure(program, fmt.Sprintf("execution exceeded the %s budget", c.cfg.Timeout), stderr.String())
		res.Stdout = stdout.String()
		return res
	}
	if runErr != nil {
		trace := stderr.String()
		res := failure(program, failureMessage(trace, runErr), trace)
		res.Stdout = stdout.String()
		return res
	}

	png, err := os.ReadFile(outPath)
	if err != nil || len(png) == 0 {
		res := failure(program, "program executed but produced no image", stderr.String())
		res.Stdout = stdout.String()
		return res
	}

	log.Debug("diagram: compile succeeded",
		slog.Int("program_len", len(program)),
		slog.Int("image_bytes", len(png)),
	)
	return &Result{
		Success:     true,
		ImageBase64: base64.StdEncoding.EncodeToString(png),
		Stdout:      stdout.String(),
		Stderr:      stderr.String(),
		Code:        program,
	}
}

// failure builds a failed Result.
func failure(program, message, traceback string) *Result {
	return &Result{
		Success:   false,
		Error:     message,
		Traceback: traceback,
		Code:      program,
	}
}

// failureMessage condenses a traceback into a one-line error: the last
// non-empty stderr line is the exception line in a Python traceback.
func failureMessage(trace string, runErr error) string {
	lines := strings.Split(strings.TrimSpace(trace), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return runErr.Error()
}
