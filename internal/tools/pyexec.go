package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

// PyExec runs model-supplied Python code in a subprocess with a bounded
// runtime and output size. The subprocess gets no arguments beyond the
// code itself; anything it wants to report must go to stdout.
type PyExec struct {
	interpreter    string
	timeout        time.Duration
	maxOutputBytes int
}

// PyExecConfig configures the Python executor.
type PyExecConfig struct {
	// Interpreter is the Python binary to invoke (default "python3").
	Interpreter string
	// Timeout bounds a single execution (default 10s).
	Timeout time.Duration
	// MaxOutputBytes truncates captured output (default 100KB).
	MaxOutputBytes int
}

// NewPyExec creates a Python executor with the given configuration.
func NewPyExec(cfg PyExecConfig) *PyExec {
	if cfg.Interpreter == "" {
		cfg.Interpreter = "python3"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 100 * 1024
	}
	return &PyExec{
		interpreter:    cfg.Interpreter,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
	}
}

// Run executes code and returns its stdout. A timeout yields
// TimeoutSentinel; execution failures yield a textual error result.
// The returned string is always a tool result, never an error to the
// dispatch loop.
func (p *PyExec) Run(ctx context.Context, code string) string {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.interpreter, "-c", code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return TimeoutSentinel
	}

	out := truncateOutput(stdout.String(), p.maxOutputBytes)
	if err != nil && out == "" {
		detail := strings.TrimSpace(truncateOutput(stderr.String(), p.maxOutputBytes))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Sprintf("Error: %s", detail)
	}

	return out
}

// Tool returns the registry descriptor for run_python_code.
func (p *PyExec) Tool() *Tool {
	return &Tool{
		Name:        "run_python_code",
		Description: "Run Python code in a sandboxed environment. Use this function for calculations or data processing. You must use print() to receive any output, and you cannot import other modules.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "The Python code to execute.",
				},
			},
			"required": []string{"code"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			code, _ := args["code"].(string)
			if code == "" {
				return "", fmt.Errorf("code is required")
			}
			return p.Run(ctx, code), nil
		},
	}
}

// truncateOutput truncates output to at most maxBytes, backing up to a
// rune boundary so a multi-byte character is never split, and adds a
// note if anything was cut.
func truncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[... output truncated ...]"
}
