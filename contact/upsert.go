package contact

import (
	"context"

	"github.com/BaSui01/voiceflow/store"
	"github.com/BaSui01/voiceflow/types"
	"go.uber.org/zap"
)

// ===== 📦 联系人落库 =====

// Upserter writes validated contact info into the contact store. Lookup is by
// (company, email) first, then (company, phone); matches are enriched
// fill-missing, everything else inserts a new auto-created row. Re-running
// with identical input is a no-op update.
type Upserter struct {
	contacts *store.ContactStore
	logger   *zap.Logger
}

// NewUpserter 创建落库器
func NewUpserter(contacts *store.ContactStore, logger *zap.Logger) *Upserter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upserter{
		contacts: contacts,
		logger:   logger.With(zap.String("component", "contact_upsert")),
	}
}

// Upsert persists info for companyID and returns the contact id. Info without
// an email or phone cannot be matched and is skipped (returns "").
func (u *Upserter) Upsert(ctx context.Context, companyID string, info *types.ExtractedContactInfo, callMeta map[string]any) (string, error) {
	if companyID == "" || info == nil {
		return "", nil
	}
	if info.Email == "" && info.Phone == "" {
		return "", nil
	}

	existing, err := u.lookup(ctx, companyID, info)
	if err != nil {
		return "", err
	}

	if existing != nil {
		if changed := fillMissing(existing, info, callMeta); changed {
			if err := u.contacts.Update(ctx, existing); err != nil {
				return "", err
			}
			u.logger.Info("contact enriched", zap.String("contact_id", existing.ID))
		}
		return existing.ID, nil
	}

	row := &store.Contact{
		CompanyID:   companyID,
		Email:       info.Email,
		Phone:       info.Phone,
		FirstName:   info.FirstName,
		LastName:    info.LastName,
		CompanyName: info.CompanyName,
		Metadata:    store.JSONMap{},
	}
	for k, v := range callMeta {
		row.Metadata[k] = v
	}
	if err := u.contacts.Create(ctx, row); err != nil {
		return "", err
	}
	return row.ID, nil
}

func (u *Upserter) lookup(ctx context.Context, companyID string, info *types.ExtractedContactInfo) (*store.Contact, error) {
	if info.Email != "" {
		c, err := u.contacts.FindByEmail(ctx, companyID, info.Email)
		if err != nil || c != nil {
			return c, err
		}
	}
	if info.Phone != "" {
		return u.contacts.FindByPhone(ctx, companyID, info.Phone)
	}
	return nil, nil
}

// fillMissing copies fields from info into c only where c's field is empty,
// and merges callMeta into the metadata map with new values winning per key.
// Returns whether anything changed.
func fillMissing(c *store.Contact, info *types.ExtractedContactInfo, callMeta map[string]any) bool {
	changed := false
	setIfEmpty := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	setIfEmpty(&c.Email, info.Email)
	setIfEmpty(&c.Phone, info.Phone)
	setIfEmpty(&c.FirstName, info.FirstName)
	setIfEmpty(&c.LastName, info.LastName)
	setIfEmpty(&c.CompanyName, info.CompanyName)

	if len(callMeta) > 0 {
		if c.Metadata == nil {
			c.Metadata = store.JSONMap{}
		}
		for k, v := range callMeta {
			if cur, ok := c.Metadata[k]; !ok || cur != v {
				c.Metadata[k] = v
				changed = true
			}
		}
	}
	return changed
}
