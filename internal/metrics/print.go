package metrics

import (
	"fmt"
	"io"
	"sync/atomic"
)

type Snapshot struct {
	DurationMs  int64
	Total       int64
	TotalBytes  int64
	Processed   int64
	OK          int64
	Failed      int64
	Missing     int64
	Rejected    int64
	Errors      int64
	Warnings    int64
	BytesHashed int64
}

func (s *Stats) Snapshot() Snapshot {
	dur := s.Duration()

	return Snapshot{
		DurationMs:  dur.Milliseconds(),
		Total:       atomic.LoadInt64(&s.Total),
		TotalBytes:  atomic.LoadInt64(&s.TotalBytes),
		Processed:   atomic.LoadInt64(&s.Processed),
		OK:          atomic.LoadInt64(&s.OK),
		Failed:      atomic.LoadInt64(&s.Failed),
		Missing:     atomic.LoadInt64(&s.Missing),
		Rejected:    atomic.LoadInt64(&s.Rejected),
		Errors:      atomic.LoadInt64(&s.Errors),
		Warnings:    atomic.LoadInt64(&s.Warnings),
		BytesHashed: atomic.LoadInt64(&s.BytesHashed),
	}
}

// Clean reports whether nothing failed, went missing, was rejected or was
// skipped as malformed.
func (s Snapshot) Clean() bool {
	return s.Failed == 0 && s.Missing == 0 && s.Rejected == 0 && s.Errors == 0 && s.Warnings == 0
}

func (s Snapshot) Throughput() float64 {
	if s.DurationMs <= 0 {
		return 0
	}
	return float64(s.BytesHashed) / (float64(s.DurationMs) / 1000.0)
}

// Print writes the one-line summary followed by the detailed counters.
func Print(w io.Writer, s *Stats) {
	snap := s.Snapshot()

	fmt.Fprintf(w, "Summary: OK=%d FAILED=%d MISSING=%d INVALID_PATH=%d ERROR=%d\n",
		snap.OK, snap.Failed, snap.Missing, snap.Rejected, snap.Errors+snap.Warnings)

	fmt.Fprintln(w, "--- stats ---")
	fmt.Fprintln(w, "duration_ms:", snap.DurationMs)
	fmt.Fprintln(w, "total:", snap.Total)
	fmt.Fprintln(w, "processed:", snap.Processed)
	fmt.Fprintln(w, "parse_warnings:", snap.Warnings)
	fmt.Fprintln(w, "bytes_hashed:", snap.BytesHashed)
	fmt.Fprintln(w, "bytes_expected:", snap.TotalBytes)

	if bps := snap.Throughput(); bps > 0 {
		fmt.Fprintln(w, "throughput_bytes_per_sec:", bps)
		fmt.Fprintln(w, "throughput_mb_per_sec:", bps/1_000_000.0)
	}
}
