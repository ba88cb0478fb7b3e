package index

import (
	"fmt"
	"strings"

	"hashcc/definitions"
	"hashcc/internal/digest"
)

type Format uint8

const (
	FormatAuto Format = iota
	FormatSum
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatSum:
		return "sumfile"
	case FormatCSV:
		return "csv"
	default:
		return "auto"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "sum", "sumfile":
		return FormatSum, nil
	case "csv":
		return FormatCSV, nil
	default:
		return FormatAuto, fmt.Errorf("unknown checksum file format %q", s)
	}
}

// ParseWarning describes a line that was skipped.
type ParseWarning struct {
	Line   int
	Text   string
	Reason string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

type LoadResult struct {
	Format    Format
	Algorithm digest.Algorithm
	Entries   []definitions.ExpectedEntry
	Warnings  []ParseWarning
}
