// Package store is the database layer: agent configuration reads and contact
// upserts over GORM. Migrations own the schema; these models only map it.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ===== 📦 数据模型 =====

// JSONMap 以 JSON 编码落库的字典字段（postgres JSONB / sqlite TEXT）
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("store: unsupported JSONMap source type %T", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// AgentConfigRecord 对应 agent_configs 表
type AgentConfigRecord struct {
	ID            string  `gorm:"primaryKey;column:id"`
	CompanyID     string  `gorm:"column:company_id;index"`
	Name          string  `gorm:"column:name"`
	Description   string  `gorm:"column:description"`
	Model         string  `gorm:"column:model"`
	SystemPrompt  string  `gorm:"column:system_prompt"`
	Temperature   float32 `gorm:"column:temperature"`
	VoiceSettings JSONMap `gorm:"column:voice_settings;type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName 指定表名
func (AgentConfigRecord) TableName() string { return "agent_configs" }

// Contact 对应 contacts 表
type Contact struct {
	ID          string  `gorm:"primaryKey;column:id"`
	CompanyID   string  `gorm:"column:company_id;index"`
	Email       string  `gorm:"column:email"`
	Phone       string  `gorm:"column:phone"`
	FirstName   string  `gorm:"column:first_name"`
	LastName    string  `gorm:"column:last_name"`
	CompanyName string  `gorm:"column:company_name"`
	Metadata    JSONMap `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 指定表名
func (Contact) TableName() string { return "contacts" }
