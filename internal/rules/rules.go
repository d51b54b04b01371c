// Package rules applies deterministic accounting validation and risk
// scoring to AI suggestions. Everything here is a pure function of its
// inputs; no I/O.
package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// RiskLevel classifies how much review a suggestion needs.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// validVATCodes is the fixed set of accepted VAT codes.
var validVATCodes = map[string]struct{}{
	"0": {}, "1": {}, "2": {}, "3": {}, "5": {}, "6": {},
}

// accountRanges are the accepted chart-of-accounts bands.
var accountRanges = []struct {
	lo, hi int
	label  string
}{
	{1000, 1999, "Assets"},
	{2000, 2999, "Liabilities"},
	{3000, 3999, "Equity"},
	{4000, 4999, "Revenue"},
	{5000, 5999, "Cost of goods sold"},
	{6000, 6999, "Operating expenses"},
	{7000, 7999, "Financial items"},
	{8000, 8999, "Other income/expenses"},
}

// ValidateAccountNumber checks format and range. Returns false with a
// reason when invalid.
func ValidateAccountNumber(accountNumber string) (bool, string) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return false, "account number is missing"
	}
	if len(accountNumber) != 4 {
		return false, "account number must be 4 digits"
	}
	n, err := strconv.Atoi(accountNumber)
	if err != nil || strings.ContainsAny(accountNumber, "+-") {
		return false, "account number must be numeric"
	}
	for _, r := range accountRanges {
		if n >= r.lo && n <= r.hi {
			return true, "valid"
		}
	}
	return false, fmt.Sprintf("account number %s not in valid range", accountNumber)
}

// ValidateVATCode checks membership in the accepted VAT code set.
func ValidateVATCode(vatCode string) (bool, string) {
	vatCode = strings.TrimSpace(vatCode)
	if vatCode == "" {
		return false, "VAT code is missing"
	}
	if _, ok := validVATCodes[vatCode]; !ok {
		return false, fmt.Sprintf("VAT code %s is not valid", vatCode)
	}
	return true, "valid"
}

// Validation is the combined result for one suggestion.
type Validation struct {
	AccountValid bool
	VATValid     bool
	Errors       []string
}

// Valid reports whether both codes passed.
func (v Validation) Valid() bool {
	return v.AccountValid && v.VATValid
}

// ValidateSuggestion validates both codes of a suggestion.
func ValidateSuggestion(accountNumber, vatCode string) Validation {
	accountValid, accountMsg := ValidateAccountNumber(accountNumber)
	vatValid, vatMsg := ValidateVATCode(vatCode)

	var errs []string
	if !accountValid {
		errs = append(errs, "account: "+accountMsg)
	}
	if !vatValid {
		errs = append(errs, "vat: "+vatMsg)
	}
	return Validation{AccountValid: accountValid, VATValid: vatValid, Errors: errs}
}

// RiskFor applies the risk rules in order: high wins on low confidence or
// any invalid code, then medium on moderate confidence, else low.
func RiskFor(accountNumber, vatCode string, confidence float64) RiskLevel {
	if confidence < 0.5 {
		return RiskHigh
	}
	if !ValidateSuggestion(accountNumber, vatCode).Valid() {
		return RiskHigh
	}
	if confidence < 0.7 {
		return RiskMedium
	}
	return RiskLow
}
