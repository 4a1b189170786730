package service

import (
	"context"
	"fmt"
	"log/slog"
)

// Call is one named step in a multicall batch. The transport layer builds
// the Do closure after decoding the step's parameters.
type Call struct {
	Name string
	Do   func(ctx context.Context) (any, error)
}

// CallResult pairs a completed step with its output.
type CallResult struct {
	Name   string
	Result any
}

// Multicall executes the calls in order and stops at the first failure,
// returning the results of the steps that completed. The batch is not
// transactional: completed steps stand even when a later step fails, exactly
// as if the caller had submitted them one by one.
func (s *PositionService) Multicall(ctx context.Context, calls []Call) ([]CallResult, error) {
	results := make([]CallResult, 0, len(calls))
	for i, call := range calls {
		out, err := call.Do(ctx)
		if err != nil {
			return results, fmt.Errorf("service: multicall step %d (%s): %w", i, call.Name, err)
		}
		results = append(results, CallResult{Name: call.Name, Result: out})
	}

	s.logger.DebugContext(ctx, "service: multicall complete",
		slog.Int("steps", len(calls)),
	)
	return results, nil
}
