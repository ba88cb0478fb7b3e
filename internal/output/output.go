// Package output renders hashing and verification results. Sumfile and CSV
// output are readable by the index package.
package output

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"hashcc/definitions"

	"github.com/goccy/go-json"
)

type Format uint8

const (
	FormatText Format = iota
	FormatJSON
	FormatCSV
	FormatSum
)

var ErrClosed = errors.New("writer closed")

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatCSV:
		return "csv"
	case FormatSum:
		return "sumfile"
	default:
		return "text"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "sum", "sumfile":
		return FormatSum, nil
	default:
		return FormatText, fmt.Errorf("unknown output format %q", s)
	}
}

// record is the JSON shape of one result.
type record struct {
	Path  string `json:"path"`
	Hash  string `json:"hash"`
	Error string `json:"error,omitempty"`
}

// Writer streams results as they arrive. JSON is buffered until Close
// because the document is a single array.
type Writer struct {
	format Format
	bw     *bufio.Writer
	csv    *csv.Writer
	json   []record
	closed bool
}

func NewWriter(w io.Writer, format Format) (*Writer, error) {
	out := &Writer{format: format, bw: bufio.NewWriter(w)}
	if format == FormatCSV {
		out.csv = csv.NewWriter(out.bw)
		if err := out.csv.Write([]string{"path", "hash"}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Write renders one result. Sumfile and CSV skip failed results, which are
// reported through logs and counters instead.
func (w *Writer) Write(r definitions.Result) error {
	if w.closed {
		return ErrClosed
	}

	switch w.format {
	case FormatJSON:
		rec := record{Path: r.LogicalPath, Hash: r.Hex()}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		w.json = append(w.json, rec)
		return nil

	case FormatCSV:
		if r.Failed() {
			return nil
		}
		return w.csv.Write([]string{r.LogicalPath, r.Hex()})

	case FormatSum:
		if r.Failed() {
			return nil
		}
		_, err := fmt.Fprintf(w.bw, "%s  %s\n", r.Hex(), r.LogicalPath)
		return err

	default:
		if r.Failed() {
			_, err := fmt.Fprintf(w.bw, "%s: FAILED (%v)\n", r.LogicalPath, r.Err)
			return err
		}
		_, err := fmt.Fprintf(w.bw, "%s  %s\n", r.Hex(), r.LogicalPath)
		return err
	}
}

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	switch w.format {
	case FormatJSON:
		recs := w.json
		if recs == nil {
			recs = []record{}
		}
		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		if _, err := w.bw.Write(append(data, '\n')); err != nil {
			return err
		}
	case FormatCSV:
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

// Write renders a complete batch.
func Write(w io.Writer, format Format, results []definitions.Result) error {
	out, err := NewWriter(w, format)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := out.Write(r); err != nil {
			return err
		}
	}
	return out.Close()
}

// WriteVerify prints one line per verification outcome. quiet drops the
// matches.
func WriteVerify(w io.Writer, results []definitions.VerifyResult, quiet bool) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		var err error
		switch r.Outcome {
		case definitions.OutcomeMatch:
			if quiet {
				continue
			}
			_, err = fmt.Fprintf(bw, "%s: OK\n", r.Entry.Path)
		case definitions.OutcomeMismatch, definitions.OutcomeMissing:
			_, err = fmt.Fprintf(bw, "%s: %s\n", r.Entry.Path, r.Outcome)
		default:
			_, err = fmt.Fprintf(bw, "%s: %s (%v)\n", r.Entry.Path, r.Outcome, r.Err)
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}
