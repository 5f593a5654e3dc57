package qbowebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/pickflow-backend/internal/webhooks/reconciler"
	"github.com/angelmondragon/pickflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pickflow-backend/pkg/errors"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the body keyed by the
// app's verifier token.
const SignatureHeader = "intuit-signature"

// Payload is the QBO data change notification body.
type Payload struct {
	EventNotifications []EventNotification `json:"eventNotifications"`
}

type EventNotification struct {
	RealmID         string          `json:"realmId"`
	DataChangeEvent DataChangeEvent `json:"dataChangeEvent"`
}

type DataChangeEvent struct {
	Entities []Entity `json:"entities"`
}

type Entity struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Operation   string `json:"operation"`
	LastUpdated string `json:"lastUpdated"`
	DeletedID   string `json:"deletedId,omitempty"`
}

var lastUpdatedLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.000Z0700", "2006-01-02T15:04:05Z0700"}

// VerifySignature reports whether header matches payload signed with verifierToken.
func VerifySignature(payload []byte, verifierToken, header string) bool {
	if verifierToken == "" || header == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(verifierToken))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// Decode parses body into one notification per realm. Entities other than
// items and estimates, and operations other than create, update and delete,
// are dropped. A merge is handled as an update of the surviving entity.
func Decode(body []byte) ([]reconciler.Notification, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode qbo webhook")
	}

	out := make([]reconciler.Notification, 0, len(payload.EventNotifications))
	for _, en := range payload.EventNotifications {
		realm := strings.TrimSpace(en.RealmID)
		if realm == "" {
			continue
		}
		n := reconciler.Notification{Provider: enums.ProviderQBO, RemoteAccountID: realm}
		for _, entity := range en.DataChangeEvent.Entities {
			event, ok := toEvent(entity)
			if ok {
				n.Events = append(n.Events, event)
			}
		}
		if len(n.Events) > 0 {
			out = append(out, n)
		}
	}
	return out, nil
}

func toEvent(entity Entity) (reconciler.Event, bool) {
	kind, err := enums.ParseWebhookEntity(entity.Name)
	if err != nil || strings.TrimSpace(entity.ID) == "" {
		return reconciler.Event{}, false
	}
	raw := entity.Operation
	if strings.EqualFold(raw, "Merge") {
		raw = string(enums.WebhookOperationUpdate)
	}
	op, err := enums.ParseWebhookOperation(raw)
	if err != nil {
		return reconciler.Event{}, false
	}
	return reconciler.Event{
		ID:          strings.TrimSpace(entity.ID),
		Operation:   op,
		EntityType:  kind,
		LastUpdated: parseLastUpdated(entity.LastUpdated),
	}, true
}

func parseLastUpdated(value string) time.Time {
	for _, layout := range lastUpdatedLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// EventKey identifies one entity change for deduplication. QBO redelivers the
// same change with an identical lastUpdated stamp.
func EventKey(realmID string, event reconciler.Event) string {
	stamp := "-"
	if !event.LastUpdated.IsZero() {
		stamp = event.LastUpdated.Format(time.RFC3339Nano)
	}
	return strings.Join([]string{realmID, string(event.EntityType), event.ID, string(event.Operation), stamp}, ":")
}
