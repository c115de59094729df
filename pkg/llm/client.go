// Package llm provides a client for OpenAI-compatible chat-completion services.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"future-self-go/internal/config"
	"future-self-go/internal/metrics"
	"future-self-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// 外部服务的角色词汇。
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ErrServiceUnavailable 是补全服务所有失败的统一条件。
var ErrServiceUnavailable = errors.New("AI service unavailable")

// ErrNotConfigured 表示缺少补全服务凭证，能力不应被初始化。
var ErrNotConfigured = errors.New("AI service is not configured")

// ServiceError 携带原始状态码与细节用于日志，对外统一表现为 ErrServiceUnavailable。
// 库自身的错误类型只保留为 Detail 文本，不会被 errors.As 取到。
type ServiceError struct {
	StatusCode int
	Detail     string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("AI service unavailable (status %d): %s", e.StatusCode, e.Detail)
	}
	return "AI service unavailable: " + e.Detail
}

func (e *ServiceError) Unwrap() error {
	return ErrServiceUnavailable
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 发送完整的消息列表，返回第一个候选的去空白文本。不做自动重试。
	Complete(ctx context.Context, messages []Message) (string, error)
}

type openAICompatibleClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewClient 基于配置创建客户端，api_key 缺失时返回 ErrNotConfigured。
func NewClient(cfg config.LLMConfig) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	return &openAICompatibleClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: float32(cfg.Generation.Temperature),
		maxTokens:   cfg.Generation.MaxTokens,
	}, nil
}

func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	metrics.CompletionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		serr := translateError(err)
		metrics.CompletionsTotal.WithLabelValues(outcomeLabel(serr.StatusCode)).Inc()
		if serr.StatusCode == http.StatusUnauthorized {
			log.Errorw("AI service authentication failed", "model", c.model, "detail", serr.Detail)
		} else {
			log.Errorw("AI service call failed", "model", c.model, "status", serr.StatusCode, "detail", serr.Detail)
		}
		return "", serr
	}
	if len(resp.Choices) == 0 {
		metrics.CompletionsTotal.WithLabelValues("malformed").Inc()
		return "", &ServiceError{StatusCode: http.StatusOK, Detail: "response contained no choices"}
	}
	metrics.CompletionsTotal.WithLabelValues("ok").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// translateError 将库相关的错误类型转换为 ServiceError。
func translateError(err error) *ServiceError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ServiceError{StatusCode: apiErr.HTTPStatusCode, Detail: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ServiceError{StatusCode: reqErr.HTTPStatusCode, Detail: reqErr.Error()}
	}
	return &ServiceError{Detail: err.Error()}
}

func outcomeLabel(status int) string {
	switch {
	case status == 0:
		return "transport"
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "auth"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	default:
		return "error"
	}
}
