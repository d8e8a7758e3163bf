package sluice

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Runner drives an engine to completion and reports what happened.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Output   io.Writer
	Headless bool
	// Timeout bounds the run. Zero means no limit beyond the caller's context.
	Timeout  time.Duration
	Renderer ContentRenderer
}

// ContentRenderer transforms the markdown summary before it is written.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a headful Runner writing to w.
func NewRunner(w io.Writer) *Runner {
	return &Runner{Output: w}
}

// Run starts the engine, waits for the graph to settle and prints a summary.
// The run error, if any, is returned after the summary is written.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if !r.Headless {
		fmt.Fprintf(r.Output, "--- sluice: %s ---\n", engine.Name)
	}
	started := time.Now()
	runErr := engine.Run(ctx)
	if r.Headless {
		return runErr
	}

	summary := Summary(engine, time.Since(started), runErr)
	if r.Renderer != nil {
		if rendered, err := r.Renderer(summary); err == nil {
			summary = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(summary))
	return runErr
}

// Summary renders the node table of an engine as markdown.
func Summary(engine *Engine, elapsed time.Duration, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", engine.Name)
	status := "settled"
	if runErr != nil {
		status = "failed: " + runErr.Error()
	}
	fmt.Fprintf(&b, "Run %s after %s.\n\n", status, elapsed.Round(time.Millisecond))

	b.WriteString("| Node | Type | State | Context | Committed | Error |\n")
	b.WriteString("|------|------|-------|---------|-----------|-------|\n")
	for _, n := range engine.Nodes() {
		var committed int64
		for _, o := range n.Outputs {
			committed += o.Sequence
		}
		state := n.State.String()
		switch {
		case n.Halted:
			state = "HALTED"
		case n.Killed:
			state = "KILLED"
		}
		ctxName := n.ThreadName
		if ctxName == "" {
			ctxName = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %s |\n",
			n.Label, n.Type, state, ctxName, committed, strings.ReplaceAll(n.Error, "|", "/"))
	}
	return b.String()
}
