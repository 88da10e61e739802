// =============================================================================
// DeltaStream OpenAI-Compatible Streaming Client
// =============================================================================
// Opens a chat completion stream against any OpenAI-compatible endpoint and
// hands the raw response body to the streaming aggregator. Connection retry,
// key rotation and pooling policy are left to the caller.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/deltastream/internal/tlsutil"
	"github.com/BaSui01/deltastream/llm"
	"github.com/BaSui01/deltastream/llm/providers"
	"github.com/BaSui01/deltastream/llm/streaming"
	"github.com/BaSui01/deltastream/types"
	"go.uber.org/zap"
)

// DefaultEndpointPath is the chat completions path used when Config leaves it empty.
const DefaultEndpointPath = "/v1/chat/completions"

// Config holds the configuration for an OpenAI-compatible stream client.
type Config struct {
	// ProviderName identifies the upstream in logs, metrics and errors.
	ProviderName string

	// APIKey is sent as a bearer token. Empty means no Authorization header.
	APIKey string

	// BaseURL is the base URL of the API (e.g., "https://api.openai.com").
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string

	// HeaderTimeout bounds the wait for response headers. The stream body
	// itself is bounded only by the request context.
	HeaderTimeout time.Duration

	// ReadBufferSize is the size of each body read. Defaults to 32 KiB.
	ReadBufferSize int

	// BuildHeaders optionally replaces the default bearer header builder.
	BuildHeaders func(req *http.Request, apiKey string)

	// HTTPClient overrides the hardened streaming client.
	HTTPClient *http.Client
}

// RequestRecorder receives transport level metrics. internal/metrics.Collector
// implements it.
type RequestRecorder interface {
	RecordHTTPRequest(provider string, status int, duration time.Duration)
	StreamOpened()
	StreamClosed()
}

// Client opens event streams from an OpenAI-compatible API.
type Client struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	metrics RequestRecorder
}

// New creates a client with the given config.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = DefaultEndpointPath
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = streaming.DefaultReadBufferSize
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = tlsutil.StreamingHTTPClient(cfg.HeaderTimeout)
	}
	return &Client{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With(zap.String("component", "openaicompat"), zap.String("provider", cfg.ProviderName)),
	}
}

// SetMetrics installs a transport metrics recorder.
func (c *Client) SetMetrics(r RequestRecorder) {
	c.metrics = r
}

// Name returns the provider name.
func (c *Client) Name() string { return c.cfg.ProviderName }

func (c *Client) buildHeaders(req *http.Request, apiKey string) {
	if c.cfg.BuildHeaders != nil {
		c.cfg.BuildHeaders(req, apiKey)
	} else {
		providers.BearerTokenHeaders(req, apiKey)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.EndpointPath)
}

// Open sends a streaming chat request and returns the response body as a
// chunk source. The caller owns the source and must close it, which
// streaming.Aggregator.Run does.
func (c *Client) Open(ctx context.Context, req *llm.ChatRequest) (streaming.ChunkSource, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(req, c.cfg.DefaultModel, ""),
		Messages:    providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      true,
	}
	if body.Model == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "no model specified").WithProvider(c.Name())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create request").WithCause(err).WithProvider(c.Name())
	}
	c.buildHeaders(httpReq, c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		canceled := ctx.Err() != nil
		c.logger.Warn("stream request failed", zap.Bool("canceled", canceled), zap.Error(err))
		return nil, types.NewError(types.ErrUpstreamError, "stream request failed").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(!canceled).
			WithProvider(c.Name())
	}
	c.recordRequest(resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body, resp.StatusCode)
		c.logger.Warn("stream request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, c.Name())
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		providers.SafeCloseBody(resp.Body)
		return nil, types.NewError(types.ErrStreamMissing, "response has no body").
			WithHTTPStatus(resp.StatusCode).
			WithProvider(c.Name())
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		c.logger.Debug("unexpected content type for stream", zap.String("content_type", ct))
	}

	c.logger.Debug("stream opened",
		zap.Int("status", resp.StatusCode),
		zap.String("model", body.Model))

	return streaming.NewReaderSource(c.trackBody(resp.Body), c.cfg.ReadBufferSize), nil
}

// Stream opens the request and aggregates it. observer may be nil. The
// accumulated text is returned even when the stream fails midway.
func (c *Client) Stream(ctx context.Context, req *llm.ChatRequest, observer streaming.Observer, opts ...streaming.Option) (string, error) {
	src, err := c.Open(ctx, req)
	if err != nil {
		return "", err
	}

	ctx = types.WithProvider(ctx, c.Name())
	all := make([]streaming.Option, 0, len(opts)+2)
	all = append(all, streaming.WithLogger(c.logger), streaming.WithObserver(observer))
	all = append(all, opts...)

	return streaming.New(all...).Run(ctx, src)
}

func (c *Client) recordRequest(status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordHTTPRequest(c.Name(), status, d)
	}
}

// trackBody keeps the active stream gauge in step with the body lifetime.
func (c *Client) trackBody(body io.ReadCloser) io.ReadCloser {
	if c.metrics == nil {
		return body
	}
	c.metrics.StreamOpened()
	return &trackedBody{ReadCloser: body, onClose: c.metrics.StreamClosed}
}

type trackedBody struct {
	io.ReadCloser
	once    sync.Once
	onClose func()
}

func (b *trackedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.onClose)
	return err
}
