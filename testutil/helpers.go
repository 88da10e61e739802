// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数：上下文、SSE 帧构造、分块与观察者记录
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	chunks := testutil.SplitAt([]byte(body), 5, 17)
//	rec := testutil.NewRecorder()
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 📡 SSE 帧构造
// =============================================================================

// DeltaRecord 返回携带 choices[0].delta.content 的 JSON 记录
func DeltaRecord(content string) string {
	rec := map[string]any{
		"object": "chat.completion.chunk",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": content}},
		},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// DeltaLine 返回一条以 "\n" 结尾的增量负载行
func DeltaLine(content string) string {
	return "data: " + DeltaRecord(content) + "\n"
}

// DoneLine 返回终止哨兵行
func DoneLine() string {
	return "data: [DONE]\n"
}

// CommentLine 返回一条 keep-alive 注释行
func CommentLine(text string) string {
	return ": " + text + "\n"
}

// SSEBody 把多条帧拼接为一个响应体，每条帧后追加空行分隔
func SSEBody(lines ...string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// ✂️ 分块工具
// =============================================================================

// SplitAt 在给定偏移处切分 data；越界或重复的偏移会被忽略
func SplitAt(data []byte, cuts ...int) [][]byte {
	sorted := append([]int(nil), cuts...)
	sort.Ints(sorted)

	var out [][]byte
	prev := 0
	for _, c := range sorted {
		if c <= prev || c >= len(data) {
			continue
		}
		out = append(out, data[prev:c])
		prev = c
	}
	if prev < len(data) {
		out = append(out, data[prev:])
	}
	return out
}

// SplitEvery 把 data 切成每块最多 n 字节
func SplitEvery(data []byte, n int) [][]byte {
	if n <= 0 {
		n = 1
	}
	var out [][]byte
	for len(data) > 0 {
		k := n
		if k > len(data) {
			k = len(data)
		}
		out = append(out, data[:k])
		data = data[k:]
	}
	return out
}

// =============================================================================
// 👀 观察者记录
// =============================================================================

// Recorder 并发安全地记录观察者回调
type Recorder struct {
	mu     sync.Mutex
	values []string
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Observe 记录一次回调，可直接作为观察者函数使用
func (r *Recorder) Observe(accumulated string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, accumulated)
}

// Values 返回已记录回调的副本
func (r *Recorder) Values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

// Count 返回回调次数
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// =============================================================================
// 🐢 慢速读取
// =============================================================================

// BlockingReader 在 Close 之前永远阻塞，模拟停滞的连接
type BlockingReader struct {
	once   sync.Once
	closed chan struct{}
}

// NewBlockingReader 创建阻塞读取器
func NewBlockingReader() *BlockingReader {
	return &BlockingReader{closed: make(chan struct{})}
}

// Read 阻塞直到 Close
func (r *BlockingReader) Read(p []byte) (int, error) {
	<-r.closed
	return 0, errors.New("read on closed reader")
}

// Close 解除阻塞
func (r *BlockingReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

var _ io.ReadCloser = (*BlockingReader)(nil)

// =============================================================================
// ⏳ 异步断言
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition not met within %v", timeout)
	}
}

// WaitFor 等待条件满足
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收值
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
