package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
)

// ErrNoCredential is returned when a tenant has no stored provider connection.
var ErrNoCredential = errors.New("no stored credential")

type blobCipher interface {
	Encrypt(plaintext, additionalData []byte) (string, error)
	Decrypt(blob string, additionalData []byte) ([]byte, error)
}

// Store persists TokenData as an encrypted blob on the tenant row.
type Store struct {
	db     *gorm.DB
	cipher blobCipher
	now    func() time.Time
}

// NewStore builds a credential store.
func NewStore(db *gorm.DB, cipher blobCipher) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("cipher required")
	}
	return &Store{db: db, cipher: cipher, now: time.Now}, nil
}

// Load decrypts the tenant's stored credential.
func (s *Store) Load(ctx context.Context, tenantID uuid.UUID) (*TokenData, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ctx).
		Select("id", "provider", "remote_account_id", "token_blob").
		Where("id = ?", tenantID).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("load tenant credential: %w", err)
	}
	if !tenant.IsConnected() {
		return nil, ErrNoCredential
	}

	plain, err := s.cipher.Decrypt(*tenant.TokenBlob, tenantID[:])
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %w", errUnreadableCredential, err)
	}
	var token TokenData
	if err := json.Unmarshal(plain, &token); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", errUnreadableCredential, err)
	}
	if err := token.Validate(); err != nil {
		return nil, err
	}
	return &token, nil
}

// Save encrypts and stores the credential, replacing whatever connection the
// tenant had before. Switching provider discards the previous material.
func (s *Store) Save(ctx context.Context, tenantID uuid.UUID, token TokenData) error {
	if err := token.Validate(); err != nil {
		return err
	}
	plain, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	blob, err := s.cipher.Encrypt(plain, tenantID[:])
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"provider":          token.Provider,
			"remote_account_id": token.RemoteAccountID(),
			"token_blob":        blob,
			"token_updated_at":  s.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("store credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store credential: tenant %s not found", tenantID)
	}
	return nil
}

// Clear removes the tenant's connection entirely.
func (s *Store) Clear(ctx context.Context, tenantID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"provider":          nil,
			"remote_account_id": nil,
			"token_blob":        nil,
			"token_updated_at":  nil,
		}).Error
}
