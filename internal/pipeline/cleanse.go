package pipeline

import (
	"strings"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// NormalizeCategory trims and lower-cases a categorical value. nil stays nil.
func NormalizeCategory(v *string) *string {
	if v == nil {
		return nil
	}
	s := normalizeCategory(*v)
	return &s
}

// NormalizeSymbol trims and upper-cases a trading symbol. nil stays nil.
func NormalizeSymbol(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.ToUpper(strings.TrimSpace(*v))
	return &s
}

// NormalizeText trims surrounding whitespace. nil stays nil.
func NormalizeText(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	return &s
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CleanseCustomer returns the canonical form of a raw customer row.
// The input is not modified.
func CleanseCustomer(r domain.RawCustomer) domain.RawCustomer {
	r.CountryCode = NormalizeText(r.CountryCode)
	r.TrafficSource = NormalizeCategory(r.TrafficSource)
	return r
}

// CleanseBalance returns the canonical form of a raw balance row.
func CleanseBalance(r domain.RawBalance) domain.RawBalance {
	r.OperationType = NormalizeCategory(r.OperationType)
	return r
}

// CleanseOrder returns the canonical form of a raw order row.
func CleanseOrder(r domain.RawOrder) domain.RawOrder {
	r.Symbol = NormalizeSymbol(r.Symbol)
	return r
}
