package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/sluice/internal/config"
	httpAdapter "github.com/aretw0/sluice/pkg/adapters/http"
)

// ServeOptions controls the 'serve' command.
type ServeOptions struct {
	RunOptions
	Addr string
}

// Serve runs the graph behind the HTTP monitor until interrupted. The graph
// keeps its state after it settles so it can still be inspected.
func Serve(opts ServeOptions, cfg config.Config) error {
	sc := NewSignalContext(context.Background())
	defer sc.Cancel()

	logger, err := CreateLogger(cfg.Log, nil)
	if err != nil {
		return err
	}
	eng, cleanup, err := build(sc, opts.RunOptions, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var handlerOpts []httpAdapter.Option
	handlerOpts = append(handlerOpts, httpAdapter.WithLogger(logger))
	if m := eng.Metrics(); m != nil {
		handlerOpts = append(handlerOpts, httpAdapter.WithMetrics(m))
	}
	addr := opts.Addr
	if addr == "" {
		addr = cfg.Monitor.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpAdapter.NewHandler(eng, handlerOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		printSystemMessage(opts.output(), "Monitoring '%s' on %s", eng.Name, addr)
		serverErrors <- srv.ListenAndServe()
	}()

	go func() {
		if err := eng.Run(sc); err != nil && !isInterrupted(err) {
			logger.Error("graph run failed", "err", err)
			return
		}
		logger.Info("graph settled, still serving")
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-sc.Done():
	}

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown did not complete", "err", err)
		return srv.Close()
	}
	printSystemMessage(opts.output(), "Monitor stopped gracefully")
	return nil
}
