// Package transcript talks to the conversation service's internal HTTP API:
// saving per-turn messages, listing history, and patching the conversation
// record at call end.
package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// ===== 📦 会话记录客户端 =====

// SenderType 标识消息来源方
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderAgent SenderType = "agent"
)

// Config 客户端配置
type Config struct {
	// BaseURL 会话服务地址
	BaseURL string

	// InternalToken 内部接口的 Bearer 令牌
	InternalToken string

	// Timeout 单次请求上限，零值时 5s
	Timeout time.Duration
}

// Client is the conversation-service API client. Every call is bounded by the
// configured timeout.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建客户端
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "transcript")),
	}
}

// Configured reports whether a base URL is set.
func (c *Client) Configured() bool { return c.cfg.BaseURL != "" }

// Message 会话消息
type Message struct {
	ID             string         `json:"id,omitempty"`
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content"`
	SenderType     SenderType     `json:"senderType"`
	MessageType    string         `json:"messageType"`
	ThreadID       string         `json:"threadId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt,omitempty"`
}

// SaveMessage persists one turn item as an audio-sourced message.
func (c *Client) SaveMessage(ctx context.Context, conversationID, content string, sender SenderType) error {
	body := map[string]any{
		"conversationId": conversationID,
		"content":        content,
		"senderType":     string(sender),
		"messageType":    "audio",
		"threadId":       conversationID,
		"metadata": map[string]any{
			"source":          "voice_call",
			"transcript_type": "audio",
		},
	}
	return c.do(ctx, http.MethodPost, "/api/internal/messages/create", body, nil)
}

// ListMessages returns up to limit messages of the conversation, oldest
// first. Used once at call start to probe conversation novelty.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/api/internal/messages/list?"+q.Encode(), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ConversationUpdate is the end-of-call patch. Zero-valued fields are
// omitted from the request.
type ConversationUpdate struct {
	Status    string
	EndedAt   time.Time
	Metadata  types.ConversationMetadata
	ContactID string
}

// UpdateConversation patches status, end time, contact link and metadata on
// the conversation record. EndedAt is serialized as RFC3339 UTC.
func (c *Client) UpdateConversation(ctx context.Context, conversationID string, upd ConversationUpdate) error {
	body := map[string]any{}
	if upd.Status != "" {
		body["status"] = upd.Status
	}
	if !upd.EndedAt.IsZero() {
		body["ended_at"] = upd.EndedAt.UTC().Format(time.RFC3339)
	}
	if len(upd.Metadata) > 0 {
		body["metadata"] = upd.Metadata
	}
	if upd.ContactID != "" {
		body["contact_id"] = upd.ContactID
	}
	if len(body) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPatch, "/api/internal/conversations/"+conversationID, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.cfg.BaseURL == "" {
		return types.NewError(types.ErrInvalidRequest, "transcript service url not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.InternalToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.InternalToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrTransientIO, "transcript request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.ErrUnauthorized, "transcript auth rejected").
			WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode >= 400:
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("transcript service returned %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).WithRetryable(resp.StatusCode >= 500)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return types.NewError(types.ErrUpstreamError, "decode transcript response").
				WithCause(err)
		}
	}
	return nil
}
