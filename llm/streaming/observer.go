package streaming

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSnapshotStreamClosed is returned by Write after Close.
var ErrSnapshotStreamClosed = errors.New("snapshot stream closed")

// Snapshot is one observer delivery: the accumulated text after delta Seq.
type Snapshot struct {
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DropPolicy defines what to do when the snapshot buffer is full.
type DropPolicy int

const (
	DropPolicyBlock  DropPolicy = iota // block the read loop until the consumer catches up
	DropPolicyOldest                   // discard the oldest queued snapshot
)

// SnapshotConfig configures a SnapshotStream.
type SnapshotConfig struct {
	BufferSize int        `json:"buffer_size"`
	DropPolicy DropPolicy `json:"drop_policy"`
}

// DefaultSnapshotConfig returns the defaults.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		BufferSize: 64,
		DropPolicy: DropPolicyBlock,
	}
}

// SnapshotStream decouples an observer from the read loop through a FIFO
// channel. Snapshots leave in the order they were written, so the consumer
// sees strictly growing text. With DropPolicyBlock every delta is delivered
// exactly once; with DropPolicyOldest intermediate snapshots may be skipped
// but the latest one is always queued.
type SnapshotStream struct {
	config SnapshotConfig
	buffer chan Snapshot
	done   chan struct{}
	closed atomic.Bool
	mu     sync.Mutex // serializes writers against Close
	seq    int

	produced atomic.Int64
	dropped  atomic.Int64
	blocked  atomic.Int64
}

// NewSnapshotStream creates a SnapshotStream.
func NewSnapshotStream(config SnapshotConfig) *SnapshotStream {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultSnapshotConfig().BufferSize
	}
	return &SnapshotStream{
		config: config,
		buffer: make(chan Snapshot, config.BufferSize),
		done:   make(chan struct{}),
	}
}

// Write queues the accumulated text.
func (s *SnapshotStream) Write(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSnapshotStreamClosed
	}
	s.seq++
	snap := Snapshot{Seq: s.seq, Text: text, Timestamp: time.Now()}

	if s.config.DropPolicy == DropPolicyOldest {
		for {
			select {
			case s.buffer <- snap:
				s.produced.Add(1)
				return nil
			default:
			}
			select {
			case <-s.buffer:
				s.dropped.Add(1)
			default:
			}
		}
	}

	select {
	case s.buffer <- snap:
		s.produced.Add(1)
		return nil
	default:
	}
	s.blocked.Add(1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSnapshotStreamClosed
	case s.buffer <- snap:
		s.produced.Add(1)
		return nil
	}
}

// Observer returns an Observer that writes into the stream. Write errors
// (cancellation, closed stream) are dropped: the read loop must not fail
// because its consumer went away.
func (s *SnapshotStream) Observer(ctx context.Context) Observer {
	return func(accumulated string) {
		_ = s.Write(ctx, accumulated)
	}
}

// Snapshots returns the receive side. It is closed by Close after the
// queued snapshots.
func (s *SnapshotStream) Snapshots() <-chan Snapshot {
	return s.buffer
}

// Close stops accepting writes and closes the receive channel. Writers blocked
// on a full buffer are released with ErrSnapshotStreamClosed.
func (s *SnapshotStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.done)
	s.mu.Lock()
	close(s.buffer)
	s.mu.Unlock()
	return nil
}

// Stats returns stream statistics.
func (s *SnapshotStream) Stats() SnapshotStats {
	return SnapshotStats{
		Produced:   s.produced.Load(),
		Dropped:    s.dropped.Load(),
		Blocked:    s.blocked.Load(),
		BufferSize: len(s.buffer),
		BufferCap:  s.config.BufferSize,
	}
}

// SnapshotStats contains stream statistics.
type SnapshotStats struct {
	Produced   int64 `json:"produced"`
	Dropped    int64 `json:"dropped"`
	Blocked    int64 `json:"blocked"`
	BufferSize int   `json:"buffer_size"`
	BufferCap  int   `json:"buffer_cap"`
}
