package streaming

import (
	"context"
	"errors"
	"io"
	"sync"
)

// DefaultReadBufferSize is the per-read chunk size of a ReaderSource.
const DefaultReadBufferSize = 32 * 1024

// maxEmptyReads bounds consecutive (0, nil) reads before io.ErrNoProgress.
const maxEmptyReads = 100

// ChunkSource is a pull-based, non-restartable sequence of byte chunks.
// Next returns either a chunk or an error, never both. io.EOF marks the natural
// end of the stream; any other error aborts the run. The returned slice is only
// valid until the following call.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// ChunkSourceFunc adapts a function to ChunkSource.
type ChunkSourceFunc func(ctx context.Context) ([]byte, error)

// Next calls f(ctx).
func (f ChunkSourceFunc) Next(ctx context.Context) ([]byte, error) { return f(ctx) }

// ReaderSource reads chunks from an io.Reader such as an HTTP response body.
type ReaderSource struct {
	r       io.Reader
	buf     []byte
	pending error

	closer    io.Closer
	closeOnce sync.Once
	watched   context.Context
	stop      func() bool
}

// NewReaderSource wraps r. When r is also an io.Closer, it is closed as soon as
// the context passed to the current Next call is cancelled so that a stalled
// read returns. Each distinct context handed to Next is watched in turn.
func NewReaderSource(r io.Reader, bufSize int) *ReaderSource {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	s := &ReaderSource{r: r, buf: make([]byte, bufSize)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// Next implements ChunkSource.
func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending != nil {
		return nil, s.pending
	}
	s.watch(ctx)

	for empty := 0; empty < maxEmptyReads; empty++ {
		n, err := s.r.Read(s.buf)
		if err != nil && ctx.Err() != nil {
			// The read was interrupted by our own close.
			err = ctx.Err()
		}
		if n > 0 {
			s.pending = err
			return s.buf[:n], nil
		}
		if err != nil {
			s.pending = err
			return nil, err
		}
	}
	s.pending = io.ErrNoProgress
	return nil, s.pending
}

// watch arms the close-on-cancel hook for ctx, replacing the hook of an
// earlier context.
func (s *ReaderSource) watch(ctx context.Context) {
	if s.closer == nil || s.watched == ctx {
		return
	}
	if s.stop != nil {
		s.stop()
	}
	s.watched = ctx
	s.stop = context.AfterFunc(ctx, func() { _ = s.closeReader() })
}

// Close releases the underlying reader. Safe to call more than once.
func (s *ReaderSource) Close() error {
	if s.stop != nil {
		s.stop()
	}
	return s.closeReader()
}

func (s *ReaderSource) closeReader() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// =============================================================================
// 🔌 不可关闭的读取源
// =============================================================================

type readResult struct {
	n   int
	err error
}

// AsyncReaderSource reads from a reader that cannot be interrupted by Close,
// such as a terminal or a pipe on stdin. Each Read runs on its own goroutine
// and Next selects between its result and ctx. After cancellation the
// abandoned Read is left to finish on its own and the source stays failed.
// The reader is never closed.
type AsyncReaderSource struct {
	r        io.Reader
	buf      []byte
	results  chan readResult
	inflight bool
	pending  error
}

// NewAsyncReaderSource wraps r.
func NewAsyncReaderSource(r io.Reader, bufSize int) *AsyncReaderSource {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferSize
	}
	return &AsyncReaderSource{
		r:       r,
		buf:     make([]byte, bufSize),
		results: make(chan readResult, 1),
	}
}

// Next implements ChunkSource.
func (s *AsyncReaderSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pending != nil {
		return nil, s.pending
	}

	for empty := 0; empty < maxEmptyReads; empty++ {
		if !s.inflight {
			s.inflight = true
			go func() {
				n, err := s.r.Read(s.buf)
				s.results <- readResult{n: n, err: err}
			}()
		}
		select {
		case <-ctx.Done():
			// buf still belongs to the running Read, so the source is finished.
			s.pending = ctx.Err()
			return nil, s.pending
		case res := <-s.results:
			s.inflight = false
			if res.n > 0 {
				s.pending = res.err
				return s.buf[:res.n], nil
			}
			if res.err != nil {
				s.pending = res.err
				return nil, res.err
			}
		}
	}
	s.pending = io.ErrNoProgress
	return nil, s.pending
}

// Chunk is one element delivered through a ChannelSource.
type Chunk struct {
	Data []byte
	Err  error
}

// NewChannelSource reads chunks from ch. A closed channel is the end of stream;
// a Chunk with a non-nil Err aborts the run.
func NewChannelSource(ch <-chan Chunk) ChunkSource {
	return ChunkSourceFunc(func(ctx context.Context) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c, ok := <-ch:
			if !ok {
				return nil, io.EOF
			}
			if c.Err != nil {
				return nil, c.Err
			}
			return c.Data, nil
		}
	})
}

// SliceSource replays a fixed list of chunks, then reports io.EOF or Err.
type SliceSource struct {
	chunks [][]byte
	next   int

	// Err, when set, is returned instead of io.EOF after the last chunk.
	Err error
}

// NewSliceSource creates a SliceSource over chunks.
func NewSliceSource(chunks ...[]byte) *SliceSource {
	return &SliceSource{chunks: chunks}
}

// Next implements ChunkSource.
func (s *SliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.chunks) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	c := s.chunks[s.next]
	s.next++
	return c, nil
}

// isEndOfStream reports whether err is the natural end marker.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF)
}
