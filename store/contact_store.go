package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/voiceflow/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ===== 📦 联系人存取 =====

// ContactStore persists contacts discovered during calls. Lookups are always
// tenant-scoped by company id.
type ContactStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewContactStore 创建联系人存取器
func NewContactStore(db *gorm.DB, logger *zap.Logger) *ContactStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactStore{
		db:     db,
		logger: logger.With(zap.String("component", "contact_store")),
	}
}

// FindByEmail returns the contact matching (companyID, email), or nil when no
// row exists.
func (s *ContactStore) FindByEmail(ctx context.Context, companyID, email string) (*Contact, error) {
	return s.findOne(ctx, "company_id = ? AND email = ?", companyID, email)
}

// FindByPhone returns the contact matching (companyID, phone), or nil when no
// row exists.
func (s *ContactStore) FindByPhone(ctx context.Context, companyID, phone string) (*Contact, error) {
	return s.findOne(ctx, "company_id = ? AND phone = ?", companyID, phone)
}

func (s *ContactStore) findOne(ctx context.Context, query string, args ...any) (*Contact, error) {
	var c Contact
	err := s.db.WithContext(ctx).Where(query, args...).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrTransientIO, "contact lookup failed").
			WithCause(err).WithRetryable(true)
	}
	return &c, nil
}

// Create inserts a new contact. The caller supplies the fields; the store
// assigns the id and auto-created tagging.
func (s *ContactStore) Create(ctx context.Context, c *Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Metadata == nil {
		c.Metadata = JSONMap{}
	}
	c.Metadata["source"] = "voice_call"
	c.Metadata["auto_created"] = true

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return types.NewError(types.ErrTransientIO, "contact insert failed").
			WithCause(err).WithRetryable(true)
	}
	s.logger.Info("contact created",
		zap.String("contact_id", c.ID), zap.String("company_id", c.CompanyID))
	return nil
}

// Update saves the given contact row.
func (s *ContactStore) Update(ctx context.Context, c *Contact) error {
	c.UpdatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return types.NewError(types.ErrTransientIO, "contact update failed").
			WithCause(err).WithRetryable(true)
	}
	return nil
}
