package enums

import "fmt"

// RunStatus tracks the lifecycle of a picking run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusChecking  RunStatus = "checking"
	RunStatusFinalised RunStatus = "finalised"
)

var validRunStatuses = []RunStatus{
	RunStatusPending,
	RunStatusChecking,
	RunStatusFinalised,
}

// String implements fmt.Stringer.
func (r RunStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RunStatus.
func (r RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRunStatus converts raw input into a RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
