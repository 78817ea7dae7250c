// Package stream exposes a pull-based read interface over a lazily-produced
// sequence of byte chunks.
//
// The native resource-response API consumes an io.Reader; application bodies
// arrive as chunk iterators that may block on production. Reader buffers
// partial chunks so arbitrary read sizes work against arbitrary chunk sizes.
package stream

import (
	"errors"
	"io"
	"sync"
)

var (
	// ErrNotSeekable is returned for any positioning operation.
	ErrNotSeekable = errors.New("stream is not seekable")
	// ErrNotWritable is returned for any write operation.
	ErrNotWritable = errors.New("stream is not writable")
)

// Source produces the next chunk of the underlying sequence. It returns
// io.EOF when the sequence is exhausted. A Source is not restartable.
type Source interface {
	Next() ([]byte, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func() ([]byte, error)

// Next implements Source.
func (f SourceFunc) Next() ([]byte, error) { return f() }

// Chunks returns a Source yielding the given chunks in order.
func Chunks(chunks ...[]byte) Source {
	i := 0
	return SourceFunc(func() ([]byte, error) {
		if i >= len(chunks) {
			return nil, io.EOF
		}
		c := chunks[i]
		i++
		return c, nil
	})
}

// Strings returns a Source yielding the UTF-8 bytes of the given strings.
func Strings(chunks ...string) Source {
	i := 0
	return SourceFunc(func() ([]byte, error) {
		if i >= len(chunks) {
			return nil, io.EOF
		}
		c := []byte(chunks[i])
		i++
		return c, nil
	})
}

// Reader is a pull-based io.ReadCloser over a Source.
//
// Each Read tops up an internal buffer from the source until either enough
// bytes are available or the source is exhausted, then hands back up to the
// requested count, retaining any remainder. After exhaustion Read reports
// (0, io.EOF). Reads are serialized by a per-instance lock; normal operation
// expects a single reader.
type Reader struct {
	mu        sync.Mutex
	src       Source
	buf       []byte
	err       error // sticky source error, io.EOF on normal exhaustion
	exhausted bool
	closed    bool
}

// NewReader creates a Reader owning the given source. The source is closed
// (if it implements io.Closer) on Close or when fully drained and closed.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}

	for len(r.buf) < len(p) && !r.exhausted {
		chunk, err := r.src.Next()
		if len(chunk) > 0 {
			r.buf = append(r.buf, chunk...)
		}
		if err != nil {
			r.exhausted = true
			r.err = err
		}
	}

	if len(r.buf) == 0 && r.exhausted {
		return 0, r.err
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Seek implements io.Seeker by always failing: the stream is forward-only.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNotSeekable
}

// Write always fails: the stream is read-only.
func (r *Reader) Write(p []byte) (int, error) {
	return 0, ErrNotWritable
}

// Close forwards to the source's Close if it has one, exactly once.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
