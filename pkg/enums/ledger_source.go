package enums

import "fmt"

// LedgerSource is the business reason a ledger transaction exists.
type LedgerSource string

const (
	LedgerSourceContractPurchase LedgerSource = "contract_purchase"
	LedgerSourceContractReward   LedgerSource = "contract_reward"
	LedgerSourceContractPenalty  LedgerSource = "contract_penalty"
	LedgerSourceBankBonus        LedgerSource = "bank_bonus"
	LedgerSourceBankDeduct       LedgerSource = "bank_deduct"
	LedgerSourceOpeningBalance   LedgerSource = "opening_balance"
)

var validLedgerSources = []LedgerSource{
	LedgerSourceContractPurchase,
	LedgerSourceContractReward,
	LedgerSourceContractPenalty,
	LedgerSourceBankBonus,
	LedgerSourceBankDeduct,
	LedgerSourceOpeningBalance,
}

// IsValid reports whether the value matches the canonical ledger source enum.
func (s LedgerSource) IsValid() bool {
	for _, candidate := range validLedgerSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerSource converts raw input into LedgerSource.
func ParseLedgerSource(value string) (LedgerSource, error) {
	for _, candidate := range validLedgerSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger source %q", value)
}
