package streaming

import "time"

// Run outcomes reported to a Recorder.
const (
	OutcomeSentinel = "sentinel"
	OutcomeEOF      = "eof"
	OutcomeError    = "error"
	OutcomeCanceled = "canceled"
)

// Reasons a payload line was dropped.
const (
	DropRebufferLimit = "rebuffer_limit"
	DropMalformed     = "malformed"
)

// Recorder receives per-run counters. Implementations must be safe for
// concurrent use because independent runs may share one Recorder.
type Recorder interface {
	RecordChunk(bytes int)
	RecordDelta()
	RecordRebuffer()
	RecordDroppedLine(reason string)
	RecordRun(outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordChunk(int)                 {}
func (nopRecorder) RecordDelta()                    {}
func (nopRecorder) RecordRebuffer()                 {}
func (nopRecorder) RecordDroppedLine(string)        {}
func (nopRecorder) RecordRun(string, time.Duration) {}
