package compat

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/devcatalog/pkg/types"
)

// Pair names two devices to check, in order.
type Pair struct {
	SourceDeviceID string `json:"source_device_id"`
	TargetDeviceID string `json:"target_device_id"`
}

// PairResult is the outcome of one pair in CheckMany. Exactly one of Result
// and Err is set.
type PairResult struct {
	Pair
	Result *types.CompatibilityResult `json:"result,omitempty"`
	Err    error                      `json:"-"`
}

// CheckMany checks every pair with bounded concurrency and returns the
// results in input order. A failed pair is reported in its PairResult and
// does not stop the others; only cancellation of ctx is returned as an
// error.
func (e *Engine) CheckMany(ctx context.Context, pairs []Pair) ([]PairResult, error) {
	out := make([]PairResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.CheckCompatibility(gctx, p.SourceDeviceID, p.TargetDeviceID)
			out[i] = PairResult{Pair: p, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
