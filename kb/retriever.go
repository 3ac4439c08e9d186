// Package kb queries the knowledge-base search service for text relevant to a
// user utterance. KB is an enhancement, not a dependency: every failure mode
// (timeout, transport error, non-200, empty result set) yields "absent" and a
// warn-level log, never an error into the turn loop.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"go.uber.org/zap"
)

// Config 检索服务配置
type Config struct {
	// URL 服务地址
	URL string

	// Timeout 单次查询上限，零值时 5s
	Timeout time.Duration

	// TopK 默认返回条数，零值时 5
	TopK int
}

// Retriever 知识库检索客户端
type Retriever struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewRetriever 创建检索客户端
func NewRetriever(cfg Config, logger *zap.Logger) *Retriever {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "kb")),
	}
}

type searchRequest struct {
	Query     string `json:"query"`
	CompanyID string `json:"companyId"`
	AgentID   string `json:"agentId"`
	TopK      int    `json:"topK"`
}

type searchResponse struct {
	Results []struct {
		Metadata struct {
			Text string `json:"text"`
		} `json:"metadata"`
	} `json:"results"`
}

// Query searches the knowledge base scoped by company and agent. The second
// return value is false when no context is available for any reason.
func (r *Retriever) Query(ctx context.Context, query, companyID, agentID string, topK int) (string, bool) {
	if r.cfg.URL == "" || query == "" {
		return "", false
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(searchRequest{
		Query:     query,
		CompanyID: companyID,
		AgentID:   agentID,
		TopK:      topK,
	})
	if err != nil {
		r.logger.Warn("marshal kb request failed", zap.Error(err))
		return "", false
	}

	url := strings.TrimRight(r.cfg.URL, "/") + "/api/documents/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		r.logger.Warn("build kb request failed", zap.Error(err))
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("knowledge base search failed",
			zap.String("agent_id", agentID), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("knowledge base returned non-200",
			zap.String("agent_id", agentID), zap.Int("status", resp.StatusCode))
		return "", false
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		r.logger.Warn("decode kb response failed", zap.Error(err))
		return "", false
	}

	parts := make([]string, 0, len(sr.Results))
	for _, res := range sr.Results {
		if text := strings.TrimSpace(res.Metadata.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}
