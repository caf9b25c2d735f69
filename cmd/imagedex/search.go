package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

func runSearch(ctx context.Context, env, imagePath string, out io.Writer) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	hits, err := a.search.Search(ctx, imagePath)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(hits); err != nil {
		return fmt.Errorf("write matches: %w", err)
	}
	return nil
}
