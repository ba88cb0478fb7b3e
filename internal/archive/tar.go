package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// typeRegA is the pre-POSIX regular file flag.
const typeRegA = '\x00'

func regular(hdr *tar.Header) bool {
	return hdr.Typeflag == tar.TypeReg || hdr.Typeflag == typeRegA
}

func sparse(hdr *tar.Header) bool {
	if hdr.Typeflag == tar.TypeGNUSparse {
		return true
	}
	for k := range hdr.PAXRecords {
		if strings.HasPrefix(k, "GNU.sparse.") {
			return true
		}
	}
	return false
}

// listTar records each entry's data offset so an entry opens as a section
// of the container file. Sparse entries, whose stored bytes differ from
// their content, fall back to a sequential scan.
func listTar(path string) ([]Entry, error) {
	const errCtx = "listing tar"

	f, err := os.Open(path) // #nosec G304 -- container path validated by policy
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", errCtx, path, err)
	}
	defer f.Close()

	var entries []Entry
	tr := tar.NewReader(f)
	for index := 0; ; index++ {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("%s %s: %w", errCtx, path, err)
		}
		if !regular(hdr) && hdr.Typeflag != tar.TypeGNUSparse {
			continue
		}

		name, size, idx := hdr.Name, hdr.Size, index
		if sparse(hdr) {
			entries = append(entries, Entry{
				Name: name,
				Size: size,
				Open: func() (io.ReadCloser, error) { return scanTo(path, false, idx) },
			})
			continue
		}

		// tar.Reader does not read ahead, so the file position is the
		// start of this entry's data.
		offset, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return entries, fmt.Errorf("%s %s: %w", errCtx, path, err)
		}
		entries = append(entries, Entry{
			Name: name,
			Size: size,
			Open: func() (io.ReadCloser, error) { return openSection(path, offset, size) },
		})
	}
}

func openSection(path string, offset, size int64) (io.ReadCloser, error) {
	f, err := os.Open(path) // #nosec G304 -- container path validated by policy
	if err != nil {
		return nil, err
	}
	sr := io.NewSectionReader(f, offset, size)
	return &multiCloser{Reader: &exactReader{r: sr, remaining: size}, closers: []io.Closer{f}}, nil
}

// listTarGz reads the compressed stream once to collect entry names. gzip
// has no random access, so each entry re-decompresses up to its position.
func listTarGz(path string) ([]Entry, error) {
	const errCtx = "listing tar.gz"

	rc, err := openTarStream(path, true)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", errCtx, path, err)
	}
	defer rc.Close()

	var entries []Entry
	tr := tar.NewReader(rc)
	for index := 0; ; index++ {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("%s %s: %w", errCtx, path, err)
		}
		if !regular(hdr) && hdr.Typeflag != tar.TypeGNUSparse {
			continue
		}

		idx := index
		entries = append(entries, Entry{
			Name: hdr.Name,
			Size: hdr.Size,
			Open: func() (io.ReadCloser, error) { return scanTo(path, true, idx) },
		})
	}
}

func openTarStream(path string, gz bool) (io.ReadCloser, error) {
	f, err := os.Open(path) // #nosec G304 -- container path validated by policy
	if err != nil {
		return nil, err
	}
	if !gz {
		return f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &multiCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
}

// scanTo opens the container and advances to the entry at position index.
func scanTo(path string, gz bool, index int) (io.ReadCloser, error) {
	rc, err := openTarStream(path, gz)
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(rc)
	for i := 0; i <= index; i++ {
		hdr, err := tr.Next()
		if err != nil {
			_ = rc.Close()
			if errors.Is(err, io.EOF) {
				err = ErrEntryNotFound
			}
			return nil, err
		}
		if i == index {
			return &multiCloser{Reader: &exactReader{r: tr, remaining: hdr.Size}, closers: []io.Closer{rc}}, nil
		}
	}
	_ = rc.Close()
	return nil, ErrEntryNotFound
}

// exactReader turns a short entry body into io.ErrUnexpectedEOF.
type exactReader struct {
	r         io.Reader
	remaining int64
}

func (e *exactReader) Read(p []byte) (int, error) {
	if e.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > e.remaining {
		p = p[:e.remaining]
	}
	n, err := e.r.Read(p)
	e.remaining -= int64(n)
	if errors.Is(err, io.EOF) && e.remaining > 0 {
		return n, io.ErrUnexpectedEOF
	}
	if err == nil && e.remaining == 0 {
		return n, io.EOF
	}
	return n, err
}
