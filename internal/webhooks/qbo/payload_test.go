package qbowebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
)

const samplePayload = `{
  "eventNotifications": [{
    "realmId": "9130",
    "dataChangeEvent": {
      "entities": [
        {"name": "Estimate", "id": "145", "operation": "Update", "lastUpdated": "2025-03-04T10:15:00.000Z"},
        {"name": "Item", "id": "12", "operation": "Merge", "lastUpdated": "2025-03-04T10:16:00-0700", "deletedId": "13"},
        {"name": "Invoice", "id": "99", "operation": "Create", "lastUpdated": "2025-03-04T10:17:00.000Z"},
        {"name": "Estimate", "id": "146", "operation": "Emailed", "lastUpdated": "2025-03-04T10:18:00.000Z"}
      ]
    }
  }, {
    "realmId": "4620",
    "dataChangeEvent": {"entities": [{"name": "Customer", "id": "1", "operation": "Update"}]}
  }]
}`

func TestDecodeKeepsItemAndEstimateChanges(t *testing.T) {
	notifications, err := Decode([]byte(samplePayload))
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	n := notifications[0]
	assert.Equal(t, enums.ProviderQBO, n.Provider)
	assert.Equal(t, "9130", n.RemoteAccountID)
	require.Len(t, n.Events, 2)

	assert.Equal(t, "145", n.Events[0].ID)
	assert.Equal(t, enums.WebhookEntityEstimate, n.Events[0].EntityType)
	assert.Equal(t, enums.WebhookOperationUpdate, n.Events[0].Operation)
	assert.Equal(t, time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC), n.Events[0].LastUpdated)

	assert.Equal(t, enums.WebhookEntityItem, n.Events[1].EntityType)
	assert.Equal(t, enums.WebhookOperationUpdate, n.Events[1].Operation)
	assert.Equal(t, time.Date(2025, 3, 4, 17, 16, 0, 0, time.UTC), n.Events[1].LastUpdated)
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	_, err := Decode([]byte(`{"eventNotifications":`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestEventKeyIsStablePerChange(t *testing.T) {
	notifications, err := Decode([]byte(samplePayload))
	require.NoError(t, err)
	events := notifications[0].Events

	assert.Equal(t, "9130:Estimate:145:Update:2025-03-04T10:15:00Z", EventKey("9130", events[0]))
	assert.NotEqual(t, EventKey("9130", events[0]), EventKey("9130", events[1]))
}

func sign(payload []byte, token string) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(samplePayload)
	header := sign(body, "verifier")

	assert.True(t, VerifySignature(body, "verifier", header))
	assert.False(t, VerifySignature(body, "other", header))
	assert.False(t, VerifySignature(append(body, ' '), "verifier", header))
	assert.False(t, VerifySignature(body, "verifier", "not base64!"))
	assert.False(t, VerifySignature(body, "", header))
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	ctx := context.Background()
	guard, err := NewIdempotencyGuard(&memoryStore{keys: map[string]string{}}, time.Hour, "qbo-webhook")
	require.NoError(t, err)

	seen, err := guard.CheckAndMark(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "k1"))
	seen, err = guard.CheckAndMark(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = NewIdempotencyGuard(nil, time.Hour, "qbo-webhook")
	assert.Error(t, err)
}
