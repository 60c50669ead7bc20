package enums

import "fmt"

// InstanceStatus is the lifecycle state of a purchased contract instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
)

var validInstanceStatuses = []InstanceStatus{
	InstanceStatusActive,
	InstanceStatusCompleted,
	InstanceStatusFailed,
}

// IsValid reports whether the value matches the canonical instance status enum.
func (s InstanceStatus) IsValid() bool {
	for _, candidate := range validInstanceStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusFailed
}

// ParseInstanceStatus converts raw input into InstanceStatus.
func ParseInstanceStatus(value string) (InstanceStatus, error) {
	for _, candidate := range validInstanceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid instance status %q", value)
}
