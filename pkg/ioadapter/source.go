// Package ioadapter provides the "bounded byte source" abstraction
// the writer reads its payload through, so the write loop never
// branches on whether the payload came from a file or from stdin.
package ioadapter

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrSkipWithStdin is returned when a caller asks to combine stdin
// input with a skip offset, which is not supported.
var ErrSkipWithStdin = errors.New("ioadapter: -k skip cannot be combined with stdin input")

// Source is a payload input with an optional known total length.
type Source struct {
	r      io.Reader
	closer io.Closer
	length int64
	known  bool
}

// Len reports the total payload length fixed when the source was
// built, if known; it does not shrink as bytes are read. Stdin without
// an explicit -l length has no known length: the writer reads until a
// zero-byte read or EOF signals end of stream.
func (s *Source) Len() (n int64, known bool) {
	return s.length, s.known
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Close releases the underlying file, if any. Safe to call on a
// stdin-backed source.
func (s *Source) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// NewFileSource opens path, seeks skip bytes into it, and caps the
// readable length at length bytes if length >= 0.
func NewFileSource(path string, skip, length int64) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ioadapter: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ioadapter: stat %s: %w", path, err)
	}
	if skip > 0 {
		if _, err := f.Seek(skip, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("ioadapter: seek %s: %w", path, err)
		}
	}
	avail := info.Size() - skip
	if avail < 0 {
		avail = 0
	}
	if length >= 0 && length < avail {
		avail = length
	}
	return &Source{
		r:      io.LimitReader(f, avail),
		closer: f,
		length: avail,
		known:  true,
	}, nil
}

// NewStdinSource wraps os.Stdin, capping the readable length at
// length bytes if length >= 0. A negative length means "unknown",
// i.e. read until a zero-byte read or EOF signals end of stream.
func NewStdinSource(length int64) *Source {
	if length >= 0 {
		return &Source{r: io.LimitReader(os.Stdin, length), length: length, known: true}
	}
	return &Source{r: os.Stdin}
}
