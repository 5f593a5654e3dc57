package enums

import (
	"fmt"
	"strings"
)

// WebhookOperation is the change type reported by a provider notification.
type WebhookOperation string

const (
	WebhookOperationCreate WebhookOperation = "Create"
	WebhookOperationUpdate WebhookOperation = "Update"
	WebhookOperationDelete WebhookOperation = "Delete"
)

var validWebhookOperations = []WebhookOperation{
	WebhookOperationCreate,
	WebhookOperationUpdate,
	WebhookOperationDelete,
}

// IsValid reports whether the value is a known WebhookOperation.
func (w WebhookOperation) IsValid() bool {
	for _, candidate := range validWebhookOperations {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWebhookOperation converts raw input into a WebhookOperation. Providers
// disagree on casing so the comparison is case-insensitive.
func ParseWebhookOperation(value string) (WebhookOperation, error) {
	for _, candidate := range validWebhookOperations {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook operation %q", value)
}

// WebhookEntity is the remote entity type a notification refers to.
type WebhookEntity string

const (
	WebhookEntityItem     WebhookEntity = "Item"
	WebhookEntityEstimate WebhookEntity = "Estimate"
)

// ParseWebhookEntity converts raw input into a WebhookEntity. Xero calls
// estimates quotes, so both spellings map to the same entity.
func ParseWebhookEntity(value string) (WebhookEntity, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "item":
		return WebhookEntityItem, nil
	case "estimate", "quote":
		return WebhookEntityEstimate, nil
	default:
		return "", fmt.Errorf("unsupported webhook entity %q", value)
	}
}
