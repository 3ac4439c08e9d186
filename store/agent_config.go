package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===== 📦 Agent 配置读取 =====

// ConfigStore reads agent personas. One read per call; callers fall back to
// the substitute persona on not-found but must abort on a tenant violation.
type ConfigStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewConfigStore 创建配置读取器
func NewConfigStore(db *gorm.DB, logger *zap.Logger) *ConfigStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigStore{
		db:     db,
		logger: logger.With(zap.String("component", "config_store")),
	}
}

// Get fetches the persona for agentID. When companyID is non-empty it acts as
// a tenant filter: a config that exists but belongs to another company is a
// security violation, not a miss.
func (s *ConfigStore) Get(ctx context.Context, agentID, companyID string) (*types.AgentConfig, error) {
	var rec AgentConfigRecord
	err := s.db.WithContext(ctx).Where("id = ?", agentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrConfigNotFound,
			fmt.Sprintf("agent config %s not found", agentID))
	}
	if err != nil {
		return nil, types.NewError(types.ErrTransientIO, "agent config query failed").
			WithCause(err).WithRetryable(true)
	}

	if companyID != "" && rec.CompanyID != companyID {
		s.logger.Error("agent config tenant mismatch",
			zap.String("agent_id", agentID),
			zap.String("requested_company", companyID),
			zap.String("owning_company", rec.CompanyID))
		return nil, types.NewError(types.ErrSecurityViolation,
			fmt.Sprintf("agent %s does not belong to company %s", agentID, companyID))
	}

	cfg := &types.AgentConfig{
		AgentID:      rec.ID,
		CompanyID:    rec.CompanyID,
		Name:         rec.Name,
		Description:  rec.Description,
		Model:        rec.Model,
		SystemPrompt: rec.SystemPrompt,
		Temperature:  rec.Temperature,
	}
	if voice, ok := rec.VoiceSettings["tts_voice"].(string); ok {
		cfg.Voice.TTSVoice = voice
	}
	return cfg, nil
}
