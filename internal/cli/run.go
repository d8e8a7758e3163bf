package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/sluice"
	"github.com/aretw0/sluice/internal/config"
	"github.com/aretw0/sluice/internal/presentation/tui"
	"github.com/aretw0/sluice/pkg/dsl"
)

// RunOptions contains all the configuration for the run command.
type RunOptions struct {
	// DefinitionPath is a YAML or HCL graph definition.
	DefinitionPath string
	// Snapshot restores a stored graph instead of reading a definition.
	Snapshot string
	// Save stores the graph snapshot after the run.
	Save     bool
	Headless bool
	Output   io.Writer
}

func (o RunOptions) output() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

func (o RunOptions) name() string {
	if o.Snapshot != "" {
		return o.Snapshot
	}
	return strings.TrimSuffix(filepath.Base(o.DefinitionPath), filepath.Ext(o.DefinitionPath))
}

// build creates the engine and fills it from the definition or snapshot.
// The returned cleanup closes the engine and the store.
func build(ctx context.Context, opts RunOptions, cfg config.Config) (*sluice.Engine, func(), error) {
	logger, err := CreateLogger(cfg.Log, nil)
	if err != nil {
		return nil, nil, err
	}

	name := opts.name()
	var def *dsl.Definition
	if opts.Snapshot == "" {
		if opts.DefinitionPath == "" {
			return nil, nil, fmt.Errorf("a graph definition or --snapshot is required")
		}
		if def, err = dsl.LoadFile(opts.DefinitionPath); err != nil {
			return nil, nil, err
		}
		name = def.Name
		applyDefaults(def, cfg)
	}

	eng, _, closer, err := createEngine(name, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine close failed", "err", err)
		}
		if err := closer.Close(); err != nil {
			logger.Warn("store close failed", "err", err)
		}
	}

	if def != nil {
		err = eng.Load(def)
	} else {
		err = eng.LoadSnapshot(ctx, opts.Snapshot)
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}

// Execute handles the 'run' command: build the graph, run it until it
// settles (or the configured timeout) and print a summary.
func Execute(opts RunOptions, cfg config.Config) error {
	sc := NewSignalContext(context.Background())
	defer sc.Cancel()

	eng, cleanup, err := build(sc, opts, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	out := opts.output()
	runner := &sluice.Runner{
		Output:   out,
		Headless: opts.Headless,
		Timeout:  cfg.Engine.Timeout,
	}
	if !opts.Headless && opts.Output == nil && tui.IsTerminal() {
		tui.PrintBanner(out, eng.Name)
		runner.Renderer = tui.NewRenderer()
	}

	runErr := runner.Run(sc, eng)
	if sig := sc.Signal(); sig != nil && !opts.Headless {
		printSystemMessage(out, "Interrupted by %v.", sig)
	}

	if opts.Save {
		if err := eng.Save(context.Background()); err != nil {
			return fmt.Errorf("error saving snapshot: %w", err)
		}
		if !opts.Headless {
			printSystemMessage(out, "Snapshot '%s' saved.", eng.Name)
		}
	}
	return handleExecutionError(runErr)
}
