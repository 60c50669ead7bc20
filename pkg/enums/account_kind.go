package enums

import "fmt"

// AccountKind distinguishes the shared bank account from per-rider accounts.
type AccountKind string

const (
	AccountKindBank  AccountKind = "bank"
	AccountKindRider AccountKind = "rider"
)

var validAccountKinds = []AccountKind{
	AccountKindBank,
	AccountKindRider,
}

// IsValid reports whether the value matches the canonical account kind enum.
func (k AccountKind) IsValid() bool {
	for _, candidate := range validAccountKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseAccountKind converts raw input into AccountKind.
func ParseAccountKind(value string) (AccountKind, error) {
	for _, candidate := range validAccountKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account kind %q", value)
}
