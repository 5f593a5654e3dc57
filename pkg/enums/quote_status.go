package enums

import "fmt"

// QuoteStatus tracks a quote through the picking workflow.
type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusAssigned  QuoteStatus = "assigned"
	QuoteStatusPreparing QuoteStatus = "preparing"
	QuoteStatusChecking  QuoteStatus = "checking"
	QuoteStatusCompleted QuoteStatus = "completed"
	QuoteStatusFinalised QuoteStatus = "finalised"
)

var validQuoteStatuses = []QuoteStatus{
	QuoteStatusPending,
	QuoteStatusAssigned,
	QuoteStatusPreparing,
	QuoteStatusChecking,
	QuoteStatusCompleted,
	QuoteStatusFinalised,
}

// String implements fmt.Stringer.
func (q QuoteStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QuoteStatus.
func (q QuoteStatus) IsValid() bool {
	for _, candidate := range validQuoteStatuses {
		if candidate == q {
			return true
		}
	}
	return false
}

// ParseQuoteStatus converts raw input into a QuoteStatus.
func ParseQuoteStatus(value string) (QuoteStatus, error) {
	for _, candidate := range validQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quote status %q", value)
}
