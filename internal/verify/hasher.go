package verify

import (
	"context"
	"sync/atomic"

	"hashcc/definitions"
	"hashcc/internal/digest"
	"hashcc/internal/source"
)

// HashTarget hashes one target with the strategy the selector picks for it.
// Failures are recorded on the result rather than returned.
func HashTarget(ctx context.Context, opts Options, t definitions.Target) definitions.Result {
	res := definitions.Result{LogicalPath: t.LogicalPath}
	if t.Err != nil {
		res.Err = t.Err
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	stream, err := opts.Selector.Open(t)
	if err != nil {
		res.Err = err
		return res
	}
	defer func(s source.Stream) {
		_ = s.Close()
	}(stream)
	if size := stream.SizeHint(); size > 0 && opts.Stats != nil {
		atomic.AddInt64(&opts.Stats.TotalBytes, size)
	}

	buf := make([]byte, chunkSize(opts.Selector))
	var pending int64
	flush := func() {
		if pending > 0 {
			if opts.Stats != nil {
				atomic.AddInt64(&opts.Stats.BytesHashed, pending)
			}
			opts.Bar.AddBytes(pending)
			pending = 0
		}
	}

	d, n, err := digest.Reader(opts.Algorithm, stream, buf, func(n int64) {
		pending += n
		if pending >= 1<<20 {
			flush()
		}
	})
	flush()

	res.Bytes = n
	if err != nil {
		res.Err = err
		return res
	}
	res.Digest = d
	opts.Logger.Debug().
		Str("path", t.LogicalPath).
		Str("strategy", stream.Strategy().String()).
		Int64("bytes", n).
		Msg("hashed")
	return res
}

func chunkSize(s source.Selector) int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return digest.DefaultChunkSize
}
