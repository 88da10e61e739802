package providers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/deltastream/llm"
	"github.com/BaSui01/deltastream/types"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 * 1024

// maxRawMessage 非 JSON 错误体作为消息使用时的长度上限
const maxRawMessage = 512

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	var code types.ErrorCode
	retryable := false

	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusBadRequest:
		// 检查配额/信用关键字
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") ||
			strings.Contains(msgLower, "credit") ||
			strings.Contains(msgLower, "limit") {
			code = types.ErrQuotaExceeded
		} else {
			code = types.ErrInvalidRequest
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		code = types.ErrUpstreamError
		retryable = true
	case 529: // Model overloaded (used by some providers)
		code = types.ErrModelOverloaded
		retryable = true
	default:
		code = types.ErrUpstreamError
		retryable = status >= 500
	}

	return types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider(provider)
}

// ReadErrorMessage 读取错误响应体中的消息。
// 依次尝试 error.message、字符串形式的 error、顶层 message；
// 都没有时回退到简短的原始文本，再不行则由状态码生成通用描述。
func ReadErrorMessage(body io.Reader, status int) string {
	if body == nil {
		return statusMessage(status)
	}
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return statusMessage(status)
	}

	if gjson.ValidBytes(data) {
		if msg := gjson.GetBytes(data, "error.message"); msg.Type == gjson.String && msg.String() != "" {
			if typ := gjson.GetBytes(data, "error.type").String(); typ != "" {
				return fmt.Sprintf("%s (type: %s)", msg.String(), typ)
			}
			return msg.String()
		}
		if msg := gjson.GetBytes(data, "error"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		if msg := gjson.GetBytes(data, "message"); msg.Type == gjson.String && msg.String() != "" {
			return msg.String()
		}
		return statusMessage(status)
	}

	raw := strings.TrimSpace(string(data))
	if raw != "" && len(raw) <= maxRawMessage && utf8.ValidString(raw) && !strings.HasPrefix(raw, "<") {
		return raw
	}
	return statusMessage(status)
}

func statusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("upstream returned %d %s", status, text)
	}
	return fmt.Sprintf("upstream returned status %d", status)
}

// OpenAI 兼容 API 线格式

// OpenAICompatMessage 表示 OpenAI 兼容的消息格式.
type OpenAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// OpenAICompatStreamOptions 控制流式响应附带的信息.
type OpenAICompatStreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// OpenAICompatRequest 表示 OpenAI 兼容的聊天完成请求.
type OpenAICompatRequest struct {
	Model         string                     `json:"model"`
	Messages      []OpenAICompatMessage      `json:"messages"`
	MaxTokens     int                        `json:"max_tokens,omitempty"`
	Temperature   float32                    `json:"temperature,omitempty"`
	TopP          float32                    `json:"top_p,omitempty"`
	Stop          []string                   `json:"stop,omitempty"`
	Stream        bool                       `json:"stream,omitempty"`
	StreamOptions *OpenAICompatStreamOptions `json:"stream_options,omitempty"`
}

// ConvertMessagesToOpenAI 将 llm.Message 切片转换为 OpenAI 兼容格式.
func ConvertMessagesToOpenAI(msgs []llm.Message) []OpenAICompatMessage {
	out := make([]OpenAICompatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, OpenAICompatMessage{
			Role:    string(m.Role),
			Name:    m.Name,
			Content: m.Content,
		})
	}
	return out
}

// ChooseModel 根据请求和默认值选择模型
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// BearerTokenHeaders 是标准的 Bearer token 认证 header 构建函数。
// apiKey 为空时不设置 Authorization，便于对接无鉴权的本地服务。
func BearerTokenHeaders(r *http.Request, apiKey string) {
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
	r.Header.Set("Content-Type", "application/json")
}

// SafeCloseBody 安全关闭 HTTP 响应体并忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
