//go:build unix

package source

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

func mapFile(f *os.File, size int64, chunk int) (Stream, error) {
	if int64(int(size)) != size {
		return nil, fmt.Errorf("file too large to map: %d bytes", size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("memory-mapping %s: %w", f.Name(), err)
	}
	return &mapped{data: data, chunk: chunk}, nil
}

// mapped reads straight out of the page cache. A SIGBUS from an I/O error
// on the backing file is turned into an error instead of crashing.
type mapped struct {
	data  []byte
	off   int
	chunk int
}

func (m *mapped) Read(p []byte) (n int, err error) {
	if m.off >= len(m.data) {
		return 0, io.EOF
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading mapped file at offset %d: %v", m.off, r)
		}
	}()

	n = copy(p, m.data[m.off:])
	m.off += n
	return n, nil
}

// WriteTo hands the hasher chunk-sized slices of the mapping without
// copying them.
func (m *mapped) WriteTo(w io.Writer) (total int64, err error) {
	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading mapped file at offset %d: %v", m.off, r)
		}
	}()

	for m.off < len(m.data) {
		end := min(m.off+m.chunk, len(m.data))
		n, werr := w.Write(m.data[m.off:end])
		m.off += n
		total += int64(n)
		if werr != nil {
			return total, werr
		}
	}
	return total, nil
}

func (m *mapped) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

func (m *mapped) SizeHint() int64 { return int64(len(m.data)) }

func (m *mapped) Strategy() Strategy { return StrategyMmap }
