// Package index reads checksum files: sha256sum style sumfiles and
// path,hash CSV.
package index

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"hashcc/definitions"
	"hashcc/internal/digest"
)

var ErrNoHeader = errors.New("csv header must name path and hash columns")

func Load(path string, format Format, alg digest.Algorithm) (LoadResult, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return LoadResult{}, err
	}
	if format == FormatAuto && strings.EqualFold(filepath.Ext(path), ".csv") {
		format = FormatCSV
	}
	return parse(data, format, alg)
}

// Parse reads a checksum file from r. FormatAuto picks CSV when the first
// non-blank line is a path,hash header.
func Parse(r io.Reader, format Format, alg digest.Algorithm) (LoadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return LoadResult{}, err
	}
	return parse(data, format, alg)
}

func parse(data []byte, format Format, alg digest.Algorithm) (LoadResult, error) {
	if format == FormatAuto {
		format = FormatSum
		if looksLikeCSV(data) {
			format = FormatCSV
		}
	}

	res := LoadResult{Format: format, Algorithm: alg}
	switch format {
	case FormatCSV:
		if err := parseCSV(data, alg, &res); err != nil {
			return LoadResult{}, fmt.Errorf("csv: %w", err)
		}
	default:
		parseSum(data, alg, &res)
	}
	return res, nil
}

func looksLikeCSV(data []byte) bool {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		cols := strings.Split(strings.ToLower(string(line)), ",")
		_, _, ok := headerColumns(cols)
		return ok
	}
	return false
}

func headerColumns(cols []string) (pathCol, hashCol int, ok bool) {
	pathCol, hashCol = -1, -1
	for i, c := range cols {
		switch strings.ToLower(strings.TrimSpace(c)) {
		case "path":
			pathCol = i
		case "hash":
			hashCol = i
		}
	}
	return pathCol, hashCol, pathCol >= 0 && hashCol >= 0
}

// parseSum accepts "<hex>  <path>" and the binary form "<hex> *<path>".
// CRLF endings and a missing final newline are fine.
func parseSum(data []byte, alg digest.Algorithm, res *LoadResult) {
	lines := strings.Split(string(data), "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimRightFunc(raw, unicode.IsSpace)
		if line == "" {
			continue
		}

		sep := strings.IndexFunc(line, unicode.IsSpace)
		if sep <= 0 {
			res.Warnings = append(res.Warnings, ParseWarning{Line: lineNo, Text: line, Reason: "missing separator"})
			continue
		}
		hash := line[:sep]
		rest := strings.TrimLeftFunc(line[sep:], unicode.IsSpace)
		rest = strings.TrimPrefix(rest, "*")
		if rest == "" {
			res.Warnings = append(res.Warnings, ParseWarning{Line: lineNo, Text: line, Reason: "missing path"})
			continue
		}

		entry, reason := newEntry(rest, hash, alg, lineNo)
		if reason != "" {
			res.Warnings = append(res.Warnings, ParseWarning{Line: lineNo, Text: line, Reason: reason})
			continue
		}
		res.Entries = append(res.Entries, entry)
	}
}

func parseCSV(data []byte, alg digest.Algorithm, res *LoadResult) error {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	pathCol, hashCol, ok := headerColumns(header)
	if !ok {
		return ErrNoHeader
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				res.Warnings = append(res.Warnings, ParseWarning{Line: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return err
		}
		line, _ := r.FieldPos(0)

		if pathCol >= len(record) || hashCol >= len(record) {
			res.Warnings = append(res.Warnings, ParseWarning{Line: line, Text: strings.Join(record, ","), Reason: "missing column"})
			continue
		}
		entry, reason := newEntry(record[pathCol], strings.TrimSpace(record[hashCol]), alg, line)
		if reason != "" {
			res.Warnings = append(res.Warnings, ParseWarning{Line: line, Text: strings.Join(record, ","), Reason: reason})
			continue
		}
		res.Entries = append(res.Entries, entry)
	}
}

func newEntry(path, hash string, alg digest.Algorithm, line int) (definitions.ExpectedEntry, string) {
	if path == "" {
		return definitions.ExpectedEntry{}, "missing path"
	}
	if len(hash) != alg.HexLen() {
		return definitions.ExpectedEntry{}, fmt.Sprintf("hash length %d does not match %s", len(hash), alg)
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return definitions.ExpectedEntry{}, "hash is not hex"
	}
	return definitions.ExpectedEntry{
		Path:      path,
		Hash:      strings.ToLower(hash),
		Algorithm: alg,
		Line:      line,
	}, ""
}
