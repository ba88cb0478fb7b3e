package verify

import (
	"errors"

	"hashcc/definitions"
	"hashcc/internal/digest"
	"hashcc/internal/index"
	"hashcc/internal/metrics"
	"hashcc/internal/policy"
	"hashcc/internal/progress"
	"hashcc/internal/scheduler"
	"hashcc/internal/source"

	"github.com/rs/zerolog"
)

var ErrInvalidDigest = errors.New("invalid expected digest")

// Options carries everything one invocation needs. It is built once and
// not modified afterwards, so concurrent invocations stay independent.
type Options struct {
	Algorithm digest.Algorithm
	Policy    policy.Policy
	Selector  source.Selector
	Scheduler scheduler.Options

	// Generate only.
	Include  []string
	Exclude  []string
	Archives bool

	Logger zerolog.Logger
	// Stats and Bar are optional.
	Stats *metrics.Stats
	Bar   *progress.Bar
}

func (o Options) stats() *metrics.Stats {
	if o.Stats != nil {
		return o.Stats
	}
	return &metrics.Stats{}
}

type Result struct {
	Entries  []definitions.VerifyResult
	Warnings []index.ParseWarning
	Stats    *metrics.Stats
}

// OK is true only when every entry matched and no line was skipped.
func (r *Result) OK() bool {
	if len(r.Warnings) > 0 {
		return false
	}
	for _, e := range r.Entries {
		if e.Outcome != definitions.OutcomeMatch {
			return false
		}
	}
	return true
}

func (r *Result) Mismatches() []definitions.VerifyResult {
	var out []definitions.VerifyResult
	for _, e := range r.Entries {
		if e.Outcome == definitions.OutcomeMismatch {
			out = append(out, e)
		}
	}
	return out
}
