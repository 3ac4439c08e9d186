package contact

import (
	"context"
	"testing"

	"github.com/BaSui01/voiceflow/store"
	"github.com/BaSui01/voiceflow/types"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newUpserter(t *testing.T) (*Upserter, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.Contact{}))
	return NewUpserter(store.NewContactStore(db, zap.NewNop()), zap.NewNop()), db
}

func TestUpsertInsertsNewContact(t *testing.T) {
	u, db := newUpserter(t)
	info := &types.ExtractedContactInfo{
		Email:     "ana@example.com",
		FirstName: "Ana",
	}

	id, err := u.Upsert(context.Background(), "co_1", info, map[string]any{"conversation_id": "cv_1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var row store.Contact
	require.NoError(t, db.First(&row, "id = ?", id).Error)
	assert.Equal(t, "co_1", row.CompanyID)
	assert.Equal(t, "ana@example.com", row.Email)
	assert.Equal(t, "voice_call", row.Metadata["source"])
	assert.Equal(t, true, row.Metadata["auto_created"])
	assert.Equal(t, "cv_1", row.Metadata["conversation_id"])
}

func TestUpsertMatchesByEmailThenPhone(t *testing.T) {
	u, db := newUpserter(t)
	ctx := context.Background()

	id1, err := u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{Email: "ana@example.com"}, nil)
	require.NoError(t, err)

	// same email -> same row even with a new phone
	id2, err := u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{
		Email: "ana@example.com", Phone: "15551234567",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// phone-only now resolves to the same row
	id3, err := u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{Phone: "15551234567"}, nil)
	require.NoError(t, err)
	assert.Equal(t, id1, id3)

	var count int64
	require.NoError(t, db.Model(&store.Contact{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertFillMissingOnly(t *testing.T) {
	u, _ := newUpserter(t)
	ctx := context.Background()

	id, err := u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{
		Email: "ana@example.com", FirstName: "Ana",
	}, nil)
	require.NoError(t, err)

	_, err = u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{
		Email: "ana@example.com", FirstName: "Anna", LastName: "Ng",
	}, nil)
	require.NoError(t, err)

	row, err := u.contacts.FindByEmail(ctx, "co_1", "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, id, row.ID)
	assert.Equal(t, "Ana", row.FirstName, "existing field not overwritten")
	assert.Equal(t, "Ng", row.LastName, "missing field filled")
}

func TestUpsertMetadataNewWins(t *testing.T) {
	u, _ := newUpserter(t)
	ctx := context.Background()

	_, err := u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{Email: "a@b.com"},
		map[string]any{"conversation_id": "cv_1"})
	require.NoError(t, err)

	_, err = u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{Email: "a@b.com"},
		map[string]any{"conversation_id": "cv_2"})
	require.NoError(t, err)

	row, err := u.contacts.FindByEmail(ctx, "co_1", "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "cv_2", row.Metadata["conversation_id"], "newer metadata wins per key")
}

func TestUpsertIdempotent(t *testing.T) {
	u, db := newUpserter(t)
	ctx := context.Background()
	info := &types.ExtractedContactInfo{
		Email: "ana@example.com", Phone: "15551234567", FirstName: "Ana",
	}
	meta := map[string]any{"conversation_id": "cv_1"}

	id1, err := u.Upsert(ctx, "co_1", info, meta)
	require.NoError(t, err)
	id2, err := u.Upsert(ctx, "co_1", info, meta)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	var count int64
	require.NoError(t, db.Model(&store.Contact{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestUpsertTenantIsolation(t *testing.T) {
	u, db := newUpserter(t)
	ctx := context.Background()

	id1, err := u.Upsert(ctx, "co_1", &types.ExtractedContactInfo{Email: "a@b.com"}, nil)
	require.NoError(t, err)
	id2, err := u.Upsert(ctx, "co_2", &types.ExtractedContactInfo{Email: "a@b.com"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2, "same email in different companies is two rows")

	var count int64
	require.NoError(t, db.Model(&store.Contact{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestUpsertSkipsUnmatchable(t *testing.T) {
	u, _ := newUpserter(t)
	id, err := u.Upsert(context.Background(), "co_1",
		&types.ExtractedContactInfo{FirstName: "Ana", Confidence: 0.9}, nil)
	require.NoError(t, err)
	assert.Empty(t, id, "no email or phone means no upsert")
}
