// Package archive exposes the regular-file entries of .zip, .tar and
// .tar.gz containers as independently openable byte streams. Entries are
// addressed by virtual paths of the form <container>!/<entry>.
package archive

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// VirtualSep separates the container path from the entry name. It must not
// occur in real filesystem paths.
const VirtualSep = "!/"

type Format uint8

const (
	FormatNone Format = iota
	FormatZip
	FormatTar
	FormatTarGz
)

func (f Format) String() string {
	switch f {
	case FormatZip:
		return "zip"
	case FormatTar:
		return "tar"
	case FormatTarGz:
		return "tar.gz"
	default:
		return "none"
	}
}

var (
	ErrNotArchive    = errors.New("not a supported archive")
	ErrEntryNotFound = errors.New("archive entry not found")
	ErrEncrypted     = errors.New("encrypted zip entry")
)

// Entry is one regular file inside a container. Open may be called
// concurrently for different entries; each call returns a fresh stream.
type Entry struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Detect maps a file name to its container format by suffix.
func Detect(name string) Format {
	n := strings.ToLower(name)
	switch {
	case strings.HasSuffix(n, ".zip"):
		return FormatZip
	case strings.HasSuffix(n, ".tar.gz"), strings.HasSuffix(n, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(n, ".tar"):
		return FormatTar
	default:
		return FormatNone
	}
}

// List returns the container's entries in its internal order. Directories,
// links and other non-regular entries are skipped. When the container turns
// out to be corrupt part way through, the entries read so far are returned
// together with the error.
func List(path string, format Format) ([]Entry, error) {
	switch format {
	case FormatZip:
		return listZip(path)
	case FormatTar:
		return listTar(path)
	case FormatTarGz:
		return listTarGz(path)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrNotArchive)
	}
}

// Find locates a single entry by name.
func Find(path, name string) (Entry, error) {
	format := Detect(path)
	entries, err := List(path, format)
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	if err != nil {
		return Entry{}, err
	}
	return Entry{}, fmt.Errorf("%s%s%s: %w", path, VirtualSep, name, ErrEntryNotFound)
}

func VirtualPath(container, entry string) string {
	return container + VirtualSep + strings.TrimLeft(entry, "/")
}

// SplitVirtual splits a virtual path at the first separator.
func SplitVirtual(p string) (container, entry string, ok bool) {
	i := strings.Index(p, VirtualSep)
	if i <= 0 || i+len(VirtualSep) >= len(p) {
		return "", "", false
	}
	return p[:i], p[i+len(VirtualSep):], true
}

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
