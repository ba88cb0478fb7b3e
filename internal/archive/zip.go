package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// The zip reader reports these itself, so they are shared rather than
// translated.
var (
	ErrUnsupportedMethod = zip.ErrAlgorithm
	ErrChecksum          = zip.ErrChecksum
)

func openZip(path string) (*zip.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor(zstd.WithDecoderConcurrency(1)))
	return zr, nil
}

func listZip(path string) (entries []Entry, retErr error) {
	const errCtx = "listing zip"

	zr, err := openZip(path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", errCtx, path, err)
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s %s: %w", errCtx, path, closeErr)
		}
	}()

	entries = make([]Entry, 0, len(zr.File))
	for i, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") || !f.Mode().IsRegular() {
			continue
		}
		name := f.Name
		entries = append(entries, Entry{
			Name: name,
			Size: int64(f.UncompressedSize64),
			Open: func() (io.ReadCloser, error) { return openZipMember(path, i, name) },
		})
	}
	return entries, nil
}

// openZipMember reopens the container for every member so entries can be
// read concurrently without sharing a reader. The returned stream checks
// the member's size and CRC-32 at EOF.
func openZipMember(path string, index int, name string) (io.ReadCloser, error) {
	zr, err := openZip(path)
	if err != nil {
		return nil, err
	}
	if index >= len(zr.File) || zr.File[index].Name != name {
		_ = zr.Close()
		return nil, fmt.Errorf("%s%s%s: %w", path, VirtualSep, name, ErrEntryNotFound)
	}

	f := zr.File[index]
	if f.Flags&0x1 != 0 {
		_ = zr.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrEncrypted)
	}
	rc, err := f.Open()
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &multiCloser{Reader: rc, closers: []io.Closer{rc, zr}}, nil
}
