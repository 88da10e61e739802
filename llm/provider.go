package llm

import (
	"fmt"
	"strings"

	"github.com/BaSui01/deltastream/types"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
}

// ChatRequest 是一次流式对话请求的 provider 无关描述。
type ChatRequest struct {
	TraceID     string            `json:"trace_id,omitempty"`
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
	TopP        float32           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewPromptRequest 构造单轮请求，system 为空时省略系统消息。
func NewPromptRequest(model, system, prompt string) *ChatRequest {
	req := &ChatRequest{Model: model}
	if strings.TrimSpace(system) != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: prompt})
	return req
}

// Validate 检查请求是否可以发送。
func (r *ChatRequest) Validate() error {
	if r == nil {
		return types.NewError(types.ErrInvalidRequest, "request is nil")
	}
	if len(r.Messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "request has no messages")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("message %d has unknown role %q", i, m.Role))
		}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return types.NewError(types.ErrInvalidRequest, "temperature must be between 0 and 2")
	}
	return nil
}
