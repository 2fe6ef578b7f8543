package adapter

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runToolCalls executes one round of tool calls concurrently. Results are
// returned in call order; the round fails on the first error, wrapped in a
// *ToolLoopError.
func runToolCalls(ctx context.Context, invoke ToolFunc, calls []ToolCall) ([]string, error) {
	results := make([]string, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			out, err := invoke(gctx, call)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &ToolLoopError{Err: err}
	}
	return results, nil
}
