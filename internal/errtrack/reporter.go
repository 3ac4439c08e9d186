// Package errtrack reports fatal call errors to a Sentry-compatible error
// tracker. When no DSN is configured, or outside production, the reporter is
// a noop so call sites never need nil checks.
package errtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/voiceflow/internal/tlsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config 错误上报配置
type Config struct {
	// DSN 形如 https://<key>@<host>/<project>，为空时禁用
	DSN string

	// Environment 仅为 production 时上报
	Environment string

	// Release 版本号
	Release string
}

// Reporter 错误上报器
type Reporter struct {
	storeURL string
	authKey  string
	release  string
	client   *http.Client
	logger   *zap.Logger
	enabled  bool
}

// event 是发往 store 端点的最小事件体
type event struct {
	EventID   string            `json:"event_id"`
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Release   string            `json:"release,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Extra     map[string]any    `json:"extra,omitempty"`
	Platform  string            `json:"platform"`
}

// New creates a Reporter. An empty DSN or a non-production environment
// yields a disabled (noop) reporter, never an error.
func New(cfg Config, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{
		release: cfg.Release,
		client:  tlsutil.SecureHTTPClient(5 * time.Second),
		logger:  logger.With(zap.String("component", "errtrack")),
	}

	if cfg.DSN == "" {
		r.logger.Info("error tracker DSN not set, reporting disabled")
		return r
	}
	if cfg.Environment != "production" {
		return r
	}

	storeURL, key, err := parseDSN(cfg.DSN)
	if err != nil {
		r.logger.Warn("invalid error tracker DSN, reporting disabled", zap.Error(err))
		return r
	}

	r.storeURL = storeURL
	r.authKey = key
	r.enabled = true
	r.logger.Info("error tracker initialized")
	return r
}

// parseDSN 将 https://key@host/project 转换为 store 端点与公钥
func parseDSN(dsn string) (storeURL, key string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("parse dsn: %w", err)
	}
	if u.User == nil || u.Host == "" {
		return "", "", fmt.Errorf("dsn missing key or host")
	}
	project := strings.Trim(u.Path, "/")
	if project == "" {
		return "", "", fmt.Errorf("dsn missing project id")
	}
	return fmt.Sprintf("%s://%s/api/%s/store/", u.Scheme, u.Host, project),
		u.User.Username(), nil
}

// Enabled reports whether events will actually be sent.
func (r *Reporter) Enabled() bool { return r.enabled }

// CaptureException sends err with call-identifying tags. Expected shutdown
// errors (context cancellation) are filtered. Sending is synchronous but
// bounded; callers on the hot path should invoke it from a background task.
func (r *Reporter) CaptureException(ctx context.Context, err error, tags map[string]string, extra map[string]any) {
	if !r.enabled || err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	ev := event{
		EventID:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     "error",
		Message:   err.Error(),
		Release:   r.release,
		Tags:      tags,
		Extra:     extra,
		Platform:  "go",
	}

	body, merr := json.Marshal(ev)
	if merr != nil {
		r.logger.Warn("marshal error event failed", zap.Error(merr))
		return
	}

	req, rerr := http.NewRequestWithContext(ctx, http.MethodPost, r.storeURL, bytes.NewReader(body))
	if rerr != nil {
		r.logger.Warn("build error report request failed", zap.Error(rerr))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sentry-Auth",
		fmt.Sprintf("Sentry sentry_version=7, sentry_client=voiceflow/1.0, sentry_key=%s", r.authKey))

	resp, serr := r.client.Do(req)
	if serr != nil {
		r.logger.Warn("error report send failed", zap.Error(serr))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		r.logger.Warn("error tracker rejected event", zap.Int("status", resp.StatusCode))
	}
}
