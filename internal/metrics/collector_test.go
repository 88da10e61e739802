package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/deltastream/llm/streaming"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

var _ streaming.Recorder = (*Collector)(nil)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.streamRunsTotal)
	assert.NotNil(t, collector.streamChunksTotal)
	assert.NotNil(t, collector.upstreamRequestsTotal)
	assert.NotNil(t, collector.Registry())
}

func TestNewCollector_SameNamespaceTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("dup", nil)
		NewCollector("dup", nil)
	})
}

func TestCollector_StreamCounters(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordChunk(100)
	collector.RecordChunk(28)
	collector.RecordDelta()
	collector.RecordRebuffer()
	collector.RecordDroppedLine(streaming.DropRebufferLimit)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.streamChunksTotal))
	assert.Equal(t, 128.0, testutil.ToFloat64(collector.streamBytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamDeltasTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamRebuffers))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamDroppedLines.WithLabelValues(streaming.DropRebufferLimit)))
}

func TestCollector_RecordRun(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordRun(streaming.OutcomeSentinel, 200*time.Millisecond)
	collector.RecordRun(streaming.OutcomeSentinel, time.Second)
	collector.RecordRun(streaming.OutcomeError, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.streamRunsTotal.WithLabelValues(streaming.OutcomeSentinel)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamRunsTotal.WithLabelValues(streaming.OutcomeError)))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.streamRunDuration))
}

func TestCollector_Upstream(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("openai", 200, 50*time.Millisecond)
	collector.RecordHTTPRequest("openai", 429, 10*time.Millisecond)
	collector.StreamOpened()
	collector.StreamOpened()
	collector.StreamClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamRequestsTotal.WithLabelValues("openai", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.upstreamRequestsTotal.WithLabelValues("openai", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamActiveStreams))
}

func TestCollector_AsAggregatorRecorder(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n" +
		"data: {bad\n" +
		"data: [DONE]\n"

	agg := streaming.New(streaming.WithMetrics(collector), streaming.WithMaxRebuffers(0))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	text, err := agg.Run(ctx, streaming.NewSliceSource([]byte(body)))

	require.NoError(t, err)
	assert.Equal(t, "a", text)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamDeltasTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamRunsTotal.WithLabelValues(streaming.OutcomeSentinel)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamDroppedLines.WithLabelValues(streaming.DropRebufferLimit)))
}

func TestCollector_Handler(t *testing.T) {
	ns := nextTestNamespace()
	collector := NewCollector(ns, zap.NewNop())
	collector.RecordDelta()

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), ns+"_stream_deltas_total 1"))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
