// Package cache provides the Redis-backed dispatch guard and active-call
// registry. This package is internal and should not be imported by external
// projects.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 分发去重与活跃会话注册表
// =============================================================================

const (
	dispatchKeyPrefix = "voiceflow:dispatch:"
	sessionKeyPrefix  = "voiceflow:session:"
)

// Config 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 分发去重键有效期
	DispatchTTL time.Duration `yaml:"dispatch_ttl" json:"dispatch_ttl"`

	// 活跃会话记录有效期
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DispatchTTL: 30 * time.Second,
		SessionTTL:  2 * time.Hour,
	}
}

// SessionRecord 活跃通话的注册记录
type SessionRecord struct {
	JobID          string    `json:"job_id"`
	AgentID        string    `json:"agent_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	RoomName       string    `json:"room_name"`
	StartedAt      time.Time `json:"started_at"`
}

// Manager 管理去重键与会话注册表
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

// NewManager 创建缓存管理器并验证连通性
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Manager{
		redis:  client,
		config: cfg,
		logger: logger.With(zap.String("component", "cache")),
	}, nil
}

// AcquireDispatch 尝试获取房间的分发锁。
// 返回 false 表示已有并发分发占用该房间，调用方应视为重复请求。
func (m *Manager) AcquireDispatch(ctx context.Context, roomName, jobID string) (bool, error) {
	ttl := m.config.DispatchTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ok, err := m.redis.SetNX(ctx, dispatchKeyPrefix+roomName, jobID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	return ok, nil
}

// ReleaseDispatch 释放房间的分发锁（尽力而为）。
func (m *Manager) ReleaseDispatch(ctx context.Context, roomName string) {
	if err := m.redis.Del(ctx, dispatchKeyPrefix+roomName).Err(); err != nil {
		m.logger.Warn("release dispatch lock failed",
			zap.String("room", roomName), zap.Error(err))
	}
}

// RegisterSession 将通话登记为活跃会话。
func (m *Manager) RegisterSession(ctx context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	ttl := m.config.SessionTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if err := m.redis.Set(ctx, sessionKeyPrefix+rec.RoomName, data, ttl).Err(); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

// LookupSession 查询房间对应的活跃会话，不存在时返回 (nil, nil)。
func (m *Manager) LookupSession(ctx context.Context, roomName string) (*SessionRecord, error) {
	data, err := m.redis.Get(ctx, sessionKeyPrefix+roomName).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	return &rec, nil
}

// UnregisterSession 注销活跃会话（尽力而为）。
func (m *Manager) UnregisterSession(ctx context.Context, roomName string) {
	if err := m.redis.Del(ctx, sessionKeyPrefix+roomName).Err(); err != nil {
		m.logger.Warn("unregister session failed",
			zap.String("room", roomName), zap.Error(err))
	}
}

// HealthCheck 检查 Redis 连通性
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}

// Close 关闭底层连接
func (m *Manager) Close() error {
	return m.redis.Close()
}
