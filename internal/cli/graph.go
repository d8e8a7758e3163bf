package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/config"
	"github.com/aretw0/sluice/internal/presentation/graph"
	"github.com/aretw0/sluice/internal/presentation/tui"
)

// GraphOptions controls the 'graph' command.
type GraphOptions struct {
	RunOptions
	// Report prints a markdown report instead of a Mermaid diagram.
	Report bool
	// Run executes the graph first so the output reflects its final state.
	Run bool
}

// Graph prints the graph as Mermaid, with execution contexts as subgraphs,
// or as a markdown report.
func Graph(opts GraphOptions, cfg config.Config) error {
	ctx := context.Background()
	eng, cleanup, err := build(ctx, opts.RunOptions, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var runErr error
	var elapsed time.Duration
	if opts.Run {
		runCtx := ctx
		if cfg.Engine.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.Engine.Timeout)
			defer cancel()
		}
		started := time.Now()
		runErr = eng.Run(runCtx)
		elapsed = time.Since(started)
	}

	out := opts.output()
	diagram := graph.GenerateMermaid(eng.Nodes(), eng.Links(), graph.Options{Contexts: true, States: opts.Run})
	if !opts.Report {
		fmt.Fprint(out, diagram)
		return handleExecutionError(runErr)
	}

	report := sluice.Summary(eng, elapsed, runErr) + "\n## Contexts\n\n" + contextTable(eng) + "\n## Diagram\n\n```mermaid\n" + diagram + "```\n"
	if opts.Output == nil && tui.IsTerminal() {
		if rendered, err := tui.NewRenderer()(report); err == nil {
			report = rendered
		}
	}
	fmt.Fprint(out, report)
	return handleExecutionError(runErr)
}

func contextTable(eng *sluice.Engine) string {
	table := "| Context | Id | Pending | Nodes |\n|---------|----|---------|-------|\n"
	for _, c := range eng.Contexts() {
		table += fmt.Sprintf("| %s | %d | %d | %d |\n", c.Name, c.ID, c.Pending, len(c.Nodes))
	}
	return table
}
