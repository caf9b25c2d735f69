package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
)

// runIndex performs one synchronous indexing run. Failed batches are
// reported in the printed run; only a failed or cancelled run is an error.
func runIndex(ctx context.Context, env string, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	rn, runErr := a.ingest.RunNow(ctx)
	if rn.ID == "" {
		return fmt.Errorf("start indexing run: %w", runErr)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rn); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("indexing run %s: %w", rn.State, runErr)
	}
	return nil
}
