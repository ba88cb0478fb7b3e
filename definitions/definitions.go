package definitions

import (
	"io"

	"hashcc/internal/digest"
)

type Kind uint8

const (
	KindFile Kind = iota
	KindStdin
	KindArchiveEntry
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindStdin:
		return "stdin"
	case KindArchiveEntry:
		return "archive-entry"
	default:
		return "unknown"
	}
}

// StdinPath is the root argument and logical path used for standard input.
const StdinPath = "-"

// Target is one unit of hashing work. Path is the real filesystem path for
// KindFile and the container path for KindArchiveEntry. Open is set only for
// archive entries. A non-nil Err makes the target fail without any I/O.
type Target struct {
	LogicalPath string
	Kind        Kind
	Path        string
	Entry       string
	Open        func() (io.ReadCloser, error)
	Size        int64
	Err         error
}

// Result pairs a target's logical path with its digest or a failure.
type Result struct {
	LogicalPath string
	Digest      digest.Digest
	Bytes       int64
	Err         error
}

func (r Result) Failed() bool { return r.Err != nil }

func (r Result) Hex() string {
	if r.Err != nil {
		return ""
	}
	return r.Digest.Hex()
}

type ExpectedEntry struct {
	Path      string
	Hash      string
	Algorithm digest.Algorithm
	Line      int
}

type Outcome uint8

const (
	OutcomeMatch Outcome = iota
	OutcomeMismatch
	OutcomeMissing
	OutcomePolicyRejected
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "OK"
	case OutcomeMismatch:
		return "FAILED"
	case OutcomeMissing:
		return "MISSING"
	case OutcomePolicyRejected:
		return "REJECTED"
	case OutcomeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type VerifyResult struct {
	Entry    ExpectedEntry
	Outcome  Outcome
	Computed string
	Err      error
}
