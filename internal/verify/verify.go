package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"hashcc/definitions"
	"hashcc/internal/archive"
	"hashcc/internal/digest"
	"hashcc/internal/index"
	"hashcc/internal/policy"
	"hashcc/internal/scheduler"
)

// Verify recomputes the digest of every loaded entry and compares it with
// the expected one. Results come back in checksum file order. A weak
// algorithm that the policy does not allow fails before any file is read.
func Verify(ctx context.Context, opts Options, loaded index.LoadResult) (*Result, error) {
	const errCtx = "verifying"

	if err := opts.Policy.CheckAlgorithm(opts.Algorithm); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	stats := opts.stats()
	opts.Stats = stats
	atomic.StoreInt64(&stats.Total, int64(len(loaded.Entries)))
	atomic.StoreInt64(&stats.Warnings, int64(len(loaded.Warnings)))

	for _, w := range loaded.Warnings {
		opts.Logger.Warn().Int("line", w.Line).Str("reason", w.Reason).Msg("skipping malformed checksum line")
	}

	res := &Result{
		Entries:  make([]definitions.VerifyResult, 0, len(loaded.Entries)),
		Warnings: loaded.Warnings,
		Stats:    stats,
	}

	work := func(ctx context.Context, e definitions.ExpectedEntry) definitions.VerifyResult {
		vr := check(ctx, opts, e)
		record(opts, vr)
		return vr
	}
	emit := func(vr definitions.VerifyResult) error {
		res.Entries = append(res.Entries, vr)
		return nil
	}

	if err := scheduler.Run(ctx, opts.Scheduler, slices.Values(loaded.Entries), work, emit); err != nil {
		return res, fmt.Errorf("%s: %w", errCtx, err)
	}
	return res, nil
}

// Compare hashes a single path and checks it against expectedHex.
func Compare(ctx context.Context, opts Options, path, expectedHex string) (definitions.VerifyResult, error) {
	const errCtx = "comparing"

	if err := opts.Policy.CheckAlgorithm(opts.Algorithm); err != nil {
		return definitions.VerifyResult{}, fmt.Errorf("%s: %w", errCtx, err)
	}
	expected, err := digest.ParseHex(opts.Algorithm, strings.TrimSpace(expectedHex))
	if err != nil {
		return definitions.VerifyResult{}, fmt.Errorf("%s: %w: %w", errCtx, ErrInvalidDigest, err)
	}

	stats := opts.stats()
	opts.Stats = stats
	atomic.StoreInt64(&stats.Total, 1)

	vr := check(ctx, opts, definitions.ExpectedEntry{
		Path:      path,
		Hash:      expected.Hex(),
		Algorithm: opts.Algorithm,
	})
	record(opts, vr)
	return vr, nil
}

// check never opens a path the policy rejects, and reports a path that does
// not exist as missing rather than as a read error.
func check(ctx context.Context, opts Options, e definitions.ExpectedEntry) definitions.VerifyResult {
	vr := definitions.VerifyResult{Entry: e}

	target, err := locate(opts, e.Path)
	switch {
	case err == nil:
	case policy.IsViolation(err):
		vr.Outcome, vr.Err = definitions.OutcomePolicyRejected, err
		return vr
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, archive.ErrEntryNotFound):
		vr.Outcome, vr.Err = definitions.OutcomeMissing, err
		return vr
	default:
		vr.Outcome, vr.Err = definitions.OutcomeError, err
		return vr
	}

	expected, err := digest.ParseHex(e.Algorithm, e.Hash)
	if err != nil {
		vr.Outcome, vr.Err = definitions.OutcomeError, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
		return vr
	}

	hashed := HashTarget(ctx, opts, target)
	if hashed.Err != nil {
		vr.Outcome, vr.Err = definitions.OutcomeError, hashed.Err
		return vr
	}
	vr.Computed = hashed.Digest.Hex()

	equal, err := hashed.Digest.Equal(expected)
	switch {
	case err != nil:
		vr.Outcome, vr.Err = definitions.OutcomeError, err
	case equal:
		vr.Outcome = definitions.OutcomeMatch
	default:
		vr.Outcome = definitions.OutcomeMismatch
	}
	return vr
}

// locate turns a checksum file path into a target. Virtual paths whose
// container is a supported archive resolve the container through the policy
// and then look up the entry.
func locate(opts Options, p string) (definitions.Target, error) {
	if container, entry, ok := archive.SplitVirtual(p); ok {
		if format := archive.Detect(container); format != archive.FormatNone {
			resolved, err := opts.Policy.Resolve(container)
			if err != nil {
				return definitions.Target{}, err
			}
			if _, err := os.Stat(resolved); err != nil {
				return definitions.Target{}, err
			}
			found, err := archive.Find(resolved, entry)
			if err != nil {
				return definitions.Target{}, err
			}
			return definitions.Target{
				LogicalPath: p,
				Kind:        definitions.KindArchiveEntry,
				Path:        resolved,
				Entry:       found.Name,
				Open:        found.Open,
				Size:        found.Size,
			}, nil
		}
	}

	resolved, err := opts.Policy.Resolve(p)
	if err != nil {
		return definitions.Target{}, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return definitions.Target{}, err
	}
	if info.IsDir() {
		return definitions.Target{}, fmt.Errorf("%s: is a directory", p)
	}
	return definitions.Target{LogicalPath: p, Kind: definitions.KindFile, Path: resolved, Size: info.Size()}, nil
}

func record(opts Options, vr definitions.VerifyResult) {
	s := opts.Stats
	atomic.AddInt64(&s.Processed, 1)

	switch vr.Outcome {
	case definitions.OutcomeMatch:
		atomic.AddInt64(&s.OK, 1)
		return
	case definitions.OutcomeMismatch:
		atomic.AddInt64(&s.Failed, 1)
	case definitions.OutcomeMissing:
		atomic.AddInt64(&s.Missing, 1)
	case definitions.OutcomePolicyRejected:
		atomic.AddInt64(&s.Rejected, 1)
	default:
		atomic.AddInt64(&s.Errors, 1)
	}

	ev := opts.Logger.Warn().Str("path", vr.Entry.Path).Str("outcome", vr.Outcome.String())
	if vr.Entry.Line > 0 {
		ev = ev.Int("line", vr.Entry.Line)
	}
	if vr.Err != nil {
		ev = ev.Err(vr.Err)
	}
	ev.Msg("verification failed")
}
