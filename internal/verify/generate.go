package verify

import (
	"context"
	"fmt"
	"sync/atomic"

	"hashcc/definitions"
	"hashcc/internal/metrics"
	"hashcc/internal/policy"
	"hashcc/internal/scheduler"
	"hashcc/internal/walk"
)

// Generate hashes every target under roots and hands the results to emit
// in enumeration order. Per-target failures are results, not errors; the
// returned error is either fatal setup, an emit failure, or cancellation.
func Generate(ctx context.Context, opts Options, roots []string, emit func(definitions.Result) error) (*metrics.Stats, error) {
	const errCtx = "generating"

	if err := opts.Policy.CheckAlgorithm(opts.Algorithm); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	enum, err := walk.New(walk.Options{
		Include:  opts.Include,
		Exclude:  opts.Exclude,
		Archives: opts.Archives,
		Policy:   opts.Policy,
		Logger:   opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}
	if err := enum.Prepare(roots); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	stats := opts.stats()
	opts.Stats = stats

	work := func(ctx context.Context, t definitions.Target) definitions.Result {
		atomic.AddInt64(&stats.Total, 1)
		r := HashTarget(ctx, opts, t)
		atomic.AddInt64(&stats.Processed, 1)

		switch {
		case r.Err == nil:
			atomic.AddInt64(&stats.OK, 1)
		case policy.IsViolation(r.Err):
			atomic.AddInt64(&stats.Rejected, 1)
			opts.Logger.Warn().Str("path", r.LogicalPath).Err(r.Err).Msg("rejected by policy")
		default:
			atomic.AddInt64(&stats.Errors, 1)
			opts.Logger.Warn().Str("path", r.LogicalPath).Err(r.Err).Msg("hashing failed")
		}
		return r
	}

	if err := scheduler.Run(ctx, opts.Scheduler, enum.Targets(ctx), work, emit); err != nil {
		return stats, fmt.Errorf("%s: %w", errCtx, err)
	}
	return stats, nil
}
