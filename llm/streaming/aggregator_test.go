package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/deltastream/testutil"
	"github.com/BaSui01/deltastream/types"
)

type fakeRecorder struct {
	mu        sync.Mutex
	chunks    int
	bytes     int
	deltas    int
	rebuffers int
	dropped   map[string]int
	outcomes  []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{dropped: make(map[string]int)}
}

func (r *fakeRecorder) RecordChunk(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks++
	r.bytes += n
}

func (r *fakeRecorder) RecordDelta() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas++
}

func (r *fakeRecorder) RecordRebuffer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebuffers++
}

func (r *fakeRecorder) RecordDroppedLine(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *fakeRecorder) RecordRun(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func chunksOf(parts ...string) [][]byte {
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, []byte(p))
	}
	return out
}

func runChunks(t *testing.T, chunks [][]byte, opts ...Option) (string, *testutil.Recorder, *Aggregator, error) {
	t.Helper()
	rec := testutil.NewRecorder()
	opts = append([]Option{WithObserver(rec.Observe), WithLogger(zaptest.NewLogger(t))}, opts...)
	agg := New(opts...)
	text, err := agg.Run(testutil.TestContext(t), NewSliceSource(chunks...))
	return text, rec, agg, err
}

// ---------------------------------------------------------------------------
// Termination
// ---------------------------------------------------------------------------

func TestAggregator_HelloWithSentinel(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
		"data: [DONE]\n\n"

	text, rec, agg, err := runChunks(t, [][]byte{[]byte(body)})

	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "Hello"}, rec.Values())
	assert.Equal(t, StateDone, agg.State())
	assert.True(t, agg.Stats().SentinelSeen)
	assert.Equal(t, 2, agg.Stats().Deltas)
	assert.Equal(t, "Hello", agg.Text())
}

func TestAggregator_SentinelEndsRunImmediately(t *testing.T) {
	body := testutil.DeltaLine("a") + testutil.DoneLine() + testutil.DeltaLine("b")
	src := NewSliceSource([]byte(body), []byte(testutil.DeltaLine("c")))
	agg := New()

	text, err := agg.Run(testutil.TestContext(t), src)

	require.NoError(t, err)
	assert.Equal(t, "a", text)
	// The second chunk is never pulled.
	next, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testutil.DeltaLine("c"), string(next))
}

func TestAggregator_EndOfStreamEquivalentToSentinel(t *testing.T) {
	withSentinel, _, _, err := runChunks(t, chunksOf(testutil.DeltaLine("only"), testutil.DoneLine()))
	require.NoError(t, err)

	withoutSentinel, rec, agg, err := runChunks(t, chunksOf(testutil.DeltaLine("only")))
	require.NoError(t, err)

	assert.Equal(t, withSentinel, withoutSentinel)
	assert.Equal(t, []string{"only"}, rec.Values())
	assert.Equal(t, StateDone, agg.State())
	assert.False(t, agg.Stats().SentinelSeen)
}

func TestAggregator_CommentsAndBlankLinesOnly(t *testing.T) {
	body := testutil.CommentLine("keep-alive") + "\n\n" + ":\r\n" + "event: ping\n"

	text, rec, agg, err := runChunks(t, testutil.SplitEvery([]byte(body), 4))

	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Zero(t, rec.Count())
	assert.Equal(t, StateDone, agg.State())
}

func TestAggregator_EmptyStream(t *testing.T) {
	text, rec, agg, err := runChunks(t, nil)

	require.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Zero(t, rec.Count())
	assert.Equal(t, StateDone, agg.State())
}

// ---------------------------------------------------------------------------
// End-of-stream residual
// ---------------------------------------------------------------------------

func TestAggregator_ResidualLineWithoutTerminator(t *testing.T) {
	body := testutil.DeltaLine("Hel") + strings.TrimSuffix(testutil.DeltaLine("lo"), "\n")

	text, rec, _, err := runChunks(t, chunksOf(body))

	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "Hello"}, rec.Values())
}

func TestAggregator_ResidualSentinelWithoutTerminator(t *testing.T) {
	text, _, agg, err := runChunks(t, chunksOf(testutil.DeltaLine("x"), "data: [DONE]"))

	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.True(t, agg.Stats().SentinelSeen)
}

func TestAggregator_MalformedResidualDroppedSilently(t *testing.T) {
	body := testutil.DeltaLine("ok") + `data: {"choices":[{"delta":{"content":"tru`

	text, rec, agg, err := runChunks(t, chunksOf(body))

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, 1, agg.Stats().Dropped)
	assert.Equal(t, StateDone, agg.State())
}

// ---------------------------------------------------------------------------
// Re-buffering
// ---------------------------------------------------------------------------

func TestAggregator_RebufferBoundThenResume(t *testing.T) {
	metrics := newFakeRecorder()
	chunks := chunksOf(
		"data: {broken\n"+testutil.DeltaLine("A"),
		testutil.DeltaLine("B"),
		testutil.DeltaLine("C"),
		testutil.DeltaLine("D"),
	)

	text, rec, agg, err := runChunks(t, chunks, WithMetrics(metrics))

	require.NoError(t, err)
	assert.Equal(t, "ABCD", text)
	assert.Equal(t, []string{"A", "AB", "ABC", "ABCD"}, rec.Values())

	stats := agg.Stats()
	assert.Equal(t, DefaultMaxRebuffers, stats.Rebuffers)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, DefaultMaxRebuffers, metrics.rebuffers)
	assert.Equal(t, 1, metrics.dropped[DropRebufferLimit])
}

func TestAggregator_StalledLineResolvedAtEndOfStream(t *testing.T) {
	chunks := chunksOf(
		"data: {broken\n"+testutil.DeltaLine("A"),
		testutil.DeltaLine("B"),
	)

	text, _, agg, err := runChunks(t, chunks)

	require.NoError(t, err)
	assert.Equal(t, "AB", text)
	assert.Equal(t, 2, agg.Stats().Rebuffers)
	assert.Equal(t, 1, agg.Stats().Dropped)
}

func TestAggregator_BarePayloadLineDoesNotStall(t *testing.T) {
	chunks := chunksOf(
		"data: \n"+testutil.DeltaLine("a"),
		testutil.DeltaLine("b")+testutil.DoneLine(),
	)

	text, rec, agg, err := runChunks(t, chunks)

	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	// the bare line never goes through a push-back round trip
	assert.Equal(t, []string{"a", "ab"}, rec.Values())
	assert.Zero(t, agg.Stats().Rebuffers)
	assert.Zero(t, agg.Stats().Dropped)
}

func TestAggregator_RebufferDisabled(t *testing.T) {
	chunks := chunksOf("data: {broken\n" + testutil.DeltaLine("A"))

	text, _, agg, err := runChunks(t, chunks, WithMaxRebuffers(0))

	require.NoError(t, err)
	assert.Equal(t, "A", text)
	assert.Zero(t, agg.Stats().Rebuffers)
	assert.Equal(t, 1, agg.Stats().Dropped)
}

func TestAggregator_RebufferUnbounded(t *testing.T) {
	chunks := make([][]byte, 0, 12)
	chunks = append(chunks, []byte("data: {broken\n"))
	for i := 0; i < 10; i++ {
		chunks = append(chunks, []byte(testutil.DeltaLine("x")))
	}

	text, rec, agg, err := runChunks(t, chunks, WithMaxRebuffers(-1))

	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 10), text)
	assert.Equal(t, 10, rec.Count())
	assert.Equal(t, 11, agg.Stats().Rebuffers)
}

func TestAggregator_RebufferedLineKeepsOrder(t *testing.T) {
	chunks := chunksOf(
		testutil.DeltaLine("1")+"data: {bad\n"+testutil.DeltaLine("2"),
		testutil.DeltaLine("3"),
	)

	_, rec, _, err := runChunks(t, chunks, WithMaxRebuffers(1))

	require.NoError(t, err)
	assert.Equal(t, []string{"1", "12", "123"}, rec.Values())
}

// ---------------------------------------------------------------------------
// Transport failures
// ---------------------------------------------------------------------------

func TestAggregator_HardErrorBeforeAnyDelta(t *testing.T) {
	src := NewSliceSource()
	src.Err = errors.New("connection reset by peer")
	rec := testutil.NewRecorder()
	agg := New(WithObserver(rec.Observe))

	text, err := agg.Run(testutil.TestContext(t), src)

	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStreamTransport))
	assert.ErrorIs(t, err, src.Err)
	assert.Equal(t, "", text)
	assert.Zero(t, rec.Count())
	assert.Equal(t, StateFailed, agg.State())
}

func TestAggregator_HardErrorKeepsPartialText(t *testing.T) {
	src := NewSliceSource([]byte(testutil.DeltaLine("part")))
	src.Err = io.ErrUnexpectedEOF
	agg := New()

	text, err := agg.Run(testutil.TestContext(t), src)

	require.Error(t, err)
	assert.Equal(t, "part", text)
	assert.Equal(t, StateFailed, agg.State())
}

func TestAggregator_TypedTransportErrorPassesThrough(t *testing.T) {
	upstream := types.NewError(types.ErrUpstreamError, "bad gateway").WithHTTPStatus(502)
	src := NewSliceSource()
	src.Err = upstream

	_, err := New().Run(testutil.TestContext(t), src)

	assert.Same(t, upstream, err)
}

func TestAggregator_CancelUnblocksStalledRead(t *testing.T) {
	reader := testutil.NewBlockingReader()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := New()
	done := make(chan error, 1)
	go func() {
		_, err := agg.Run(ctx, NewReaderSource(reader, 0))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	err, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok, "run did not observe cancellation")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, types.IsErrorCode(err, types.ErrStreamTransport))
	assert.Equal(t, StateFailed, agg.State())
}

func TestAggregator_StatsReadableDuringRun(t *testing.T) {
	ch := make(chan Chunk)
	agg := New()
	done := make(chan error, 1)
	go func() {
		_, err := agg.Run(testutil.TestContext(t), NewChannelSource(ch))
		done <- err
	}()

	ch <- Chunk{Data: []byte(testutil.DeltaLine("a"))}
	testutil.AssertEventuallyTrue(t, func() bool { return agg.Stats().Deltas == 1 }, 2*time.Second)
	assert.Equal(t, 1, agg.Stats().Chunks)
	assert.Equal(t, StateReceiving, agg.State())

	ch <- Chunk{Data: []byte(testutil.DeltaLine("b"))}
	close(ch)

	err, ok := testutil.WaitForChannel(done, 2*time.Second)
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Stats().Deltas)
	assert.Equal(t, 2, agg.Stats().Chunks)
}

func TestAggregator_AlreadyCancelledContext(t *testing.T) {
	metrics := newFakeRecorder()
	agg := New(WithMetrics(metrics))

	_, err := agg.Run(testutil.CancelledContext(), NewSliceSource([]byte(testutil.DeltaLine("x"))))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{OutcomeCanceled}, metrics.outcomes)
}

// ---------------------------------------------------------------------------
// Lifecycle, options and instrumentation
// ---------------------------------------------------------------------------

func TestAggregator_RunOnlyOnce(t *testing.T) {
	agg := New()
	_, err := agg.Run(testutil.TestContext(t), NewSliceSource([]byte(testutil.DeltaLine("x"))))
	require.NoError(t, err)

	text, err := agg.Run(testutil.TestContext(t), NewSliceSource())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.Equal(t, "x", text)
}

func TestAggregator_RunIDFromContext(t *testing.T) {
	ctx := types.WithRunID(testutil.TestContext(t), "run-42")
	agg := New()
	_, err := agg.Run(ctx, NewSliceSource())
	require.NoError(t, err)
	assert.Equal(t, "run-42", agg.RunID())

	other := New()
	_, err = other.Run(testutil.TestContext(t), NewSliceSource())
	require.NoError(t, err)
	assert.Len(t, other.RunID(), 36)
}

func TestAggregator_CustomDeltaPath(t *testing.T) {
	body := `data: {"message":{"content":"hi"}}` + "\n"
	text, _, _, err := runChunks(t, chunksOf(body), WithDeltaPath("message.content"))
	require.NoError(t, err)
	assert.Equal(t, "hi", text)
}

func TestAggregator_ClosesCloserSource(t *testing.T) {
	reader := &closeTracker{Reader: strings.NewReader(testutil.DeltaLine("x"))}
	text, err := New().Run(testutil.TestContext(t), NewReaderSource(reader, 8))
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.True(t, reader.closed)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestAggregator_RecordsMetrics(t *testing.T) {
	metrics := newFakeRecorder()
	body := testutil.SSEBody(testutil.DeltaLine("a"), testutil.DeltaLine("b"), testutil.DoneLine())
	chunks := testutil.SplitEvery([]byte(body), 10)

	_, _, _, err := runChunks(t, chunks, WithMetrics(metrics))

	require.NoError(t, err)
	assert.Equal(t, 2, metrics.deltas)
	assert.Equal(t, []string{OutcomeSentinel}, metrics.outcomes)
	assert.LessOrEqual(t, metrics.chunks, len(chunks))
	assert.Positive(t, metrics.bytes)
}

func TestAggregator_EmitsSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, _, _, err := runChunks(t, chunksOf(testutil.DeltaLine("x")), WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "streaming.Aggregate", ended[0].Name())

	attrs := make(map[string]string)
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, OutcomeEOF, attrs["stream.outcome"])
	assert.Equal(t, "1", attrs["stream.deltas"])
}

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "receiving", StateReceiving.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}
