package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/deltastream/types"
)

// DefaultMaxRebuffers bounds how many consecutive times the same malformed
// payload line is pushed back before it is dropped.
const DefaultMaxRebuffers = 3

const tracerName = "github.com/BaSui01/deltastream/llm/streaming"

// ErrAlreadyRun is returned when Run is called twice on one Aggregator.
var ErrAlreadyRun = errors.New("streaming: aggregator already ran")

// Observer receives the accumulated text after every non-empty delta.
// It is called synchronously from the read loop and must return quickly.
type Observer func(accumulated string)

// RunState is the lifecycle state of one aggregation run.
type RunState int32

const (
	StateReceiving RunState = iota
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats counts what a run saw.
type Stats struct {
	Chunks       int  `json:"chunks"`
	Bytes        int  `json:"bytes"`
	Lines        int  `json:"lines"`
	Payloads     int  `json:"payloads"`
	Deltas       int  `json:"deltas"`
	Rebuffers    int  `json:"rebuffers"`
	Dropped      int  `json:"dropped"`
	SentinelSeen bool `json:"sentinel_seen"`
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithObserver sets the delta observer.
func WithObserver(fn Observer) Option {
	return func(a *Aggregator) { a.observer = fn }
}

// WithLogger sets the logger. A nil logger keeps the no-op default.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Aggregator) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithDeltaPath changes the gjson path of the delta text.
func WithDeltaPath(path string) Option {
	return func(a *Aggregator) {
		if path != "" {
			a.deltaPath = path
		}
	}
}

// WithMaxRebuffers bounds consecutive push-backs of the same malformed line.
// Zero disables push-back entirely; a negative value removes the bound.
func WithMaxRebuffers(n int) Option {
	return func(a *Aggregator) { a.maxRebuffers = n }
}

// Aggregator reassembles an event stream and accumulates its delta text.
// One Aggregator serves exactly one run.
type Aggregator struct {
	observer     Observer
	logger       *zap.Logger
	recorder     Recorder
	tracer       trace.Tracer
	deltaPath    string
	maxRebuffers int

	started atomic.Bool
	state   atomic.Int32
	runID   string
	scanner *FrameScanner
	text    strings.Builder
	stats   Stats // owned by the Run goroutine

	mu        sync.Mutex
	published Stats

	// consecutive push-backs of lastFailed
	lastFailed string
	failStreak int
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		logger:       zap.NewNop(),
		recorder:     nopRecorder{},
		tracer:       otel.Tracer(tracerName),
		deltaPath:    DefaultDeltaPath,
		maxRebuffers: DefaultMaxRebuffers,
		scanner:      NewFrameScanner(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "stream_aggregator"))
	return a
}

// State returns the current run state. Safe to call from any goroutine.
func (a *Aggregator) State() RunState { return RunState(a.state.Load()) }

// Stats returns the counters of the run. Safe to call from any goroutine;
// during Run the counters are those published after the last processed chunk.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.published
}

func (a *Aggregator) publishStats() {
	a.mu.Lock()
	a.published = a.stats
	a.mu.Unlock()
}

// RunID returns the identifier assigned when Run started. Read it after Run
// returns or from the observer.
func (a *Aggregator) RunID() string { return a.runID }

// Text returns the text accumulated so far. Like RunID it is owned by the Run
// goroutine; other goroutines should use the observer instead.
func (a *Aggregator) Text() string { return a.text.String() }

// Run pulls chunks from src until the sentinel, end of stream or a transport
// error, and returns the accumulated text. On error the partial text is
// returned together with a *types.Error; whether to use it is up to the caller.
// If src implements io.Closer it is closed before Run returns.
func (a *Aggregator) Run(ctx context.Context, src ChunkSource) (string, error) {
	if !a.started.CompareAndSwap(false, true) {
		return a.text.String(), ErrAlreadyRun
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	if id, ok := types.RunID(ctx); ok {
		a.runID = id
	} else {
		a.runID = uuid.NewString()
	}
	logger := a.logger.With(zap.String("run_id", a.runID))

	ctx, span := a.tracer.Start(ctx, "streaming.Aggregate",
		trace.WithAttributes(attribute.String("stream.run_id", a.runID)))
	defer span.End()

	start := time.Now()
	outcome, err := a.loop(ctx, src)
	duration := time.Since(start)
	a.publishStats()

	span.SetAttributes(
		attribute.String("stream.outcome", outcome),
		attribute.Int("stream.chunks", a.stats.Chunks),
		attribute.Int("stream.bytes", a.stats.Bytes),
		attribute.Int("stream.deltas", a.stats.Deltas),
		attribute.Int("stream.rebuffers", a.stats.Rebuffers),
	)
	a.recorder.RecordRun(outcome, duration)

	if err != nil {
		a.state.Store(int32(StateFailed))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("stream run failed",
			zap.String("outcome", outcome),
			zap.Int("deltas", a.stats.Deltas),
			zap.Duration("duration", duration),
			zap.Error(err))
		return a.text.String(), err
	}

	a.state.Store(int32(StateDone))
	logger.Debug("stream run finished",
		zap.String("outcome", outcome),
		zap.Int("chunks", a.stats.Chunks),
		zap.Int("bytes", a.stats.Bytes),
		zap.Int("deltas", a.stats.Deltas),
		zap.Int("rebuffers", a.stats.Rebuffers),
		zap.Int("dropped", a.stats.Dropped),
		zap.Duration("duration", duration))
	return a.text.String(), nil
}

func (a *Aggregator) loop(ctx context.Context, src ChunkSource) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return OutcomeCanceled, transportError(err)
		}

		chunk, err := src.Next(ctx)
		if err != nil {
			if isEndOfStream(err) {
				if a.flush() {
					return OutcomeSentinel, nil
				}
				return OutcomeEOF, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return OutcomeCanceled, transportError(err)
			}
			return OutcomeError, transportError(err)
		}

		a.stats.Chunks++
		a.stats.Bytes += len(chunk)
		a.recorder.RecordChunk(len(chunk))
		a.scanner.Feed(chunk)

		done := a.drain(true)
		a.publishStats()
		if done {
			return OutcomeSentinel, nil
		}
	}
}

type lineResult int

const (
	lineContinue lineResult = iota
	lineDone
	lineRebuffered
)

// drain handles every complete pending line. It stops early on the sentinel
// (returning true) or after a push-back.
func (a *Aggregator) drain(allowRebuffer bool) bool {
	for {
		line, ok := a.scanner.Next()
		if !ok {
			return false
		}
		switch a.handleLine(line, allowRebuffer) {
		case lineDone:
			return true
		case lineRebuffered:
			return false
		}
	}
}

// flush is the end-of-stream pass: remaining lines and then the unterminated
// residual are handled once, without push-back.
func (a *Aggregator) flush() bool {
	if a.drain(false) {
		return true
	}
	residual := a.scanner.Residual()
	if residual == "" {
		return false
	}
	return a.handleLine(residual, false) == lineDone
}

func (a *Aggregator) handleLine(line string, allowRebuffer bool) lineResult {
	a.stats.Lines++
	kind, content := ClassifyLine(line)
	if kind != LinePayload {
		return lineContinue
	}
	a.stats.Payloads++

	res := DecodePayload(content, a.deltaPath)
	switch res.Outcome {
	case PayloadDone:
		a.stats.SentinelSeen = true
		return lineDone
	case PayloadDelta:
		a.resetStreak()
		a.accumulate(res.Delta)
	case PayloadEmpty:
		a.resetStreak()
	case PayloadMalformed:
		if !allowRebuffer {
			a.drop(content, DropMalformed)
			return lineContinue
		}
		if !a.shouldRebuffer(content) {
			a.drop(content, DropRebufferLimit)
			return lineContinue
		}
		a.scanner.Pushback(RebuildLine(content))
		a.stats.Rebuffers++
		a.recorder.RecordRebuffer()
		a.logger.Debug("payload not decodable, waiting for more data",
			zap.String("run_id", a.runID),
			zap.Int("attempt", a.failStreak),
			zap.Int("pending_bytes", a.scanner.Len()))
		return lineRebuffered
	}
	return lineContinue
}

func (a *Aggregator) accumulate(delta string) {
	a.text.WriteString(delta)
	a.stats.Deltas++
	a.recorder.RecordDelta()
	if a.observer != nil {
		a.observer(a.text.String())
	}
}

func (a *Aggregator) shouldRebuffer(content string) bool {
	if a.maxRebuffers == 0 {
		return false
	}
	if content == a.lastFailed {
		a.failStreak++
	} else {
		a.lastFailed = content
		a.failStreak = 1
	}
	if a.maxRebuffers > 0 && a.failStreak > a.maxRebuffers {
		a.resetStreak()
		return false
	}
	return true
}

func (a *Aggregator) resetStreak() {
	a.lastFailed = ""
	a.failStreak = 0
}

func (a *Aggregator) drop(content, reason string) {
	a.stats.Dropped++
	a.recorder.RecordDroppedLine(reason)
	fields := []zap.Field{
		zap.String("run_id", a.runID),
		zap.String("reason", reason),
		zap.Int("payload_bytes", len(content)),
	}
	if reason == DropRebufferLimit {
		a.logger.Warn("dropping undecodable payload line", fields...)
		return
	}
	a.logger.Debug("dropping undecodable payload line", fields...)
}

func transportError(err error) error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	return types.NewError(types.ErrStreamTransport, "stream read failed").WithCause(err)
}
