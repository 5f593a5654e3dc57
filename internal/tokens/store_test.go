package tokens

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/config"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	"github.com/angelmondragon/pickflow-backend/pkg/security"
)

func setupStoreTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:tokens_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`
CREATE TABLE tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  provider TEXT,
  remote_account_id TEXT,
  token_blob TEXT,
  token_updated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return db
}

func newTestStore(t *testing.T, db *gorm.DB, secret string) *Store {
	t.Helper()
	cipher, err := security.NewTokenCipher(config.CryptoConfig{TokenSecret: secret, TokenSalt: "salt"})
	require.NoError(t, err)
	store, err := NewStore(db, cipher)
	require.NoError(t, err)
	return store
}

func seedTenant(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, db.Create(&models.Tenant{ID: id, Name: "Acme Supplies"}).Error)
	return id
}

func TestStoreRoundTripsEncryptedCredential(t *testing.T) {
	db := setupStoreTestDB(t)
	store := newTestStore(t, db, "secret")
	tenantID := seedTenant(t, db)
	ctx := context.Background()

	token := NewQBOTokenData(QBOToken{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresIn:    3600,
		RealmID:      "realm-9",
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, store.Save(ctx, tenantID, token))

	var row models.Tenant
	require.NoError(t, db.First(&row, "id = ?", tenantID).Error)
	require.NotNil(t, row.TokenBlob)
	assert.NotContains(t, *row.TokenBlob, "access-123")
	assert.NotContains(t, *row.TokenBlob, "refresh-456")
	require.NotNil(t, row.Provider)
	assert.Equal(t, enums.ProviderQBO, *row.Provider)
	require.NotNil(t, row.RemoteAccountID)
	assert.Equal(t, "realm-9", *row.RemoteAccountID)

	loaded, err := store.Load(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, "access-123", loaded.AccessToken())
	assert.Equal(t, "refresh-456", loaded.RefreshToken())
	assert.True(t, token.ExpiresAt().Equal(loaded.ExpiresAt()))
}

func TestStoreSwitchingProviderReplacesMaterial(t *testing.T) {
	db := setupStoreTestDB(t)
	store := newTestStore(t, db, "secret")
	tenantID := seedTenant(t, db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, tenantID, NewQBOTokenData(QBOToken{AccessToken: "q", RealmID: "realm-1"})))
	require.NoError(t, store.Save(ctx, tenantID, xeroToken("x", time.Now().Add(time.Hour))))

	loaded, err := store.Load(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProviderXero, loaded.Provider)
	assert.Nil(t, loaded.QBO)

	var row models.Tenant
	require.NoError(t, db.First(&row, "id = ?", tenantID).Error)
	assert.Equal(t, "xero-org-1", *row.RemoteAccountID)
}

func TestStoreDoesNotTouchOtherTenants(t *testing.T) {
	db := setupStoreTestDB(t)
	store := newTestStore(t, db, "secret")
	first := seedTenant(t, db)
	second := seedTenant(t, db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, first, NewQBOTokenData(QBOToken{AccessToken: "q", RealmID: "realm-1"})))

	_, err := store.Load(ctx, second)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestStoreBlobIsBoundToTenant(t *testing.T) {
	db := setupStoreTestDB(t)
	store := newTestStore(t, db, "secret")
	first := seedTenant(t, db)
	second := seedTenant(t, db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, first, NewQBOTokenData(QBOToken{AccessToken: "q", RealmID: "realm-1"})))

	var row models.Tenant
	require.NoError(t, db.First(&row, "id = ?", first).Error)
	require.NoError(t, db.Model(&models.Tenant{}).Where("id = ?", second).Updates(map[string]any{
		"provider":   enums.ProviderQBO,
		"token_blob": *row.TokenBlob,
	}).Error)

	_, err := store.Load(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnreadableCredential)
}

func TestStoreWrongKeyIsUnreadable(t *testing.T) {
	db := setupStoreTestDB(t)
	tenantID := seedTenant(t, db)
	ctx := context.Background()

	require.NoError(t, newTestStore(t, db, "secret").Save(ctx, tenantID, NewQBOTokenData(QBOToken{AccessToken: "q", RealmID: "r"})))

	_, err := newTestStore(t, db, "rotated-secret").Load(ctx, tenantID)
	assert.ErrorIs(t, err, errUnreadableCredential)
}

func TestStoreClearRemovesConnection(t *testing.T) {
	db := setupStoreTestDB(t)
	store := newTestStore(t, db, "secret")
	tenantID := seedTenant(t, db)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, tenantID, NewQBOTokenData(QBOToken{AccessToken: "q", RealmID: "r"})))
	require.NoError(t, store.Clear(ctx, tenantID))

	_, err := store.Load(ctx, tenantID)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestStoreSaveUnknownTenant(t *testing.T) {
	db := setupStoreTestDB(t)
	store := newTestStore(t, db, "secret")

	err := store.Save(context.Background(), uuid.New(), NewQBOTokenData(QBOToken{AccessToken: "q", RealmID: "r"}))
	assert.Error(t, err)
}
