package enums

import "fmt"

// PickingStatus tracks the picking state for a single quote item.
type PickingStatus string

const (
	PickingStatusPending     PickingStatus = "pending"
	PickingStatusBackorder   PickingStatus = "backorder"
	PickingStatusUnavailable PickingStatus = "unavailable"
	PickingStatusCompleted   PickingStatus = "completed"
)

var validPickingStatuses = []PickingStatus{
	PickingStatusPending,
	PickingStatusBackorder,
	PickingStatusUnavailable,
	PickingStatusCompleted,
}

// String implements fmt.Stringer.
func (p PickingStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PickingStatus.
func (p PickingStatus) IsValid() bool {
	for _, candidate := range validPickingStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePickingStatus converts raw input into a PickingStatus.
func ParsePickingStatus(value string) (PickingStatus, error) {
	for _, candidate := range validPickingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid picking status %q", value)
}
