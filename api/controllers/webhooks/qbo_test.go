package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qbowebhook "github.com/angelmondragon/pickflow-backend/internal/webhooks/qbo"
	"github.com/angelmondragon/pickflow-backend/internal/webhooks/reconciler"
	"github.com/angelmondragon/pickflow-backend/pkg/logger"
)

const (
	verifier = "verifier-token"
	body     = `{"eventNotifications":[{"realmId":"9130","dataChangeEvent":{"entities":[
		{"name":"Estimate","id":"145","operation":"Update","lastUpdated":"2025-03-04T10:15:00.000Z"},
		{"name":"Item","id":"12","operation":"Create","lastUpdated":"2025-03-04T10:16:00.000Z"}]}}]}`
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type fakeProcessor struct {
	mu     sync.Mutex
	events []reconciler.Event
	err    error
}

func (f *fakeProcessor) ProcessNotification(_ context.Context, n reconciler.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, n.Events...)
	return f.err
}

func sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(verifier))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newGuard(t *testing.T, store *memoryStore) *qbowebhook.IdempotencyGuard {
	t.Helper()
	guard, err := qbowebhook.NewIdempotencyGuard(store, time.Hour, "qbo-webhook")
	require.NoError(t, err)
	return guard
}

func post(handler http.Handler, payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/qbo", bytes.NewReader([]byte(payload)))
	if signature != "" {
		req.Header.Set(qbowebhook.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestQBOWebhookProcessesOnceAcrossRedelivery(t *testing.T) {
	svc := &fakeProcessor{}
	handler := QBOWebhook(svc, verifier, newGuard(t, newMemoryStore()), nil)

	rec := post(handler, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.events, 2)

	rec = post(handler, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.events, 2, "redelivered changes are dropped")
}

func TestQBOWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeProcessor{}
	handler := QBOWebhook(svc, verifier, newGuard(t, newMemoryStore()), nil)

	rec := post(handler, body, base64.StdEncoding.EncodeToString([]byte("forged")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(handler, body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.events)
}

func TestQBOWebhookClearsMarksWhenProcessingFails(t *testing.T) {
	store := newMemoryStore()
	svc := &fakeProcessor{err: errors.New("provider down")}
	handler := QBOWebhook(svc, verifier, newGuard(t, store), nil)

	rec := post(handler, body, sign(body))
	assert.GreaterOrEqual(t, rec.Code, http.StatusInternalServerError)
	assert.Empty(t, store.data)

	svc.err = nil
	rec = post(handler, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.events, 4)
	assert.Len(t, store.data, 2)
}

type panickingProcessor struct{}

func (panickingProcessor) ProcessNotification(context.Context, reconciler.Notification) error {
	panic("reconciler bug")
}

func TestQBOWebhookClearsMarksWhenProcessingPanics(t *testing.T) {
	store := newMemoryStore()
	handler := QBOWebhook(panickingProcessor{}, verifier, newGuard(t, store), nil)

	assert.Panics(t, func() { post(handler, body, sign(body)) })
	assert.Empty(t, store.data)

	svc := &fakeProcessor{}
	handler = QBOWebhook(svc, verifier, newGuard(t, store), nil)
	rec := post(handler, body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.events, 2, "redelivery after a crash is processed")
}

// stickyGuard marks every key but cannot forget them.
type stickyGuard struct {
	mu      sync.Mutex
	deletes int
}

func (g *stickyGuard) CheckAndMark(context.Context, string) (bool, error) {
	return false, nil
}

func (g *stickyGuard) Delete(context.Context, string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes++
	return errors.New("redis unavailable")
}

func TestQBOWebhookLogsMarksThatCannotBeCleared(t *testing.T) {
	var logs bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &logs})
	guard := &stickyGuard{}
	handler := QBOWebhook(&fakeProcessor{err: errors.New("provider down")}, verifier, guard, logg)

	rec := post(handler, body, sign(body))
	assert.GreaterOrEqual(t, rec.Code, http.StatusInternalServerError)
	assert.Equal(t, 2, guard.deletes)
	assert.Contains(t, logs.String(), "failed to clear webhook mark")
	assert.Contains(t, logs.String(), "redis unavailable")
}
