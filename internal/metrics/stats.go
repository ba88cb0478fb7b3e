package metrics

import "time"

// Stats is updated concurrently by workers; use sync/atomic on the
// counters.
type Stats struct {
	Total      int64
	TotalBytes int64

	Processed int64
	OK        int64
	Failed    int64
	Missing   int64
	Rejected  int64
	Errors    int64
	Warnings  int64

	BytesHashed int64
	Started     time.Time
	Finished    time.Time
}

func (s *Stats) Start() { s.Started = time.Now() }
func (s *Stats) Stop()  { s.Finished = time.Now() }
func (s *Stats) Duration() time.Duration {
	if s.Started.IsZero() {
		return 0
	}
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}
