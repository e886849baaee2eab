package pipeline

import (
	"fmt"
	"math"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// ValidateUser checks a cleansed, deduplicated customer row. The categorical
// check on traffic_source is the only rule for users.
func ValidateUser(row domain.RawCustomer, rules *RuleSet) (*domain.User, *Rejection) {
	if row.UserID == nil {
		return nil, domainConstraint(TagMissingUserID, "user_id is not null", "user_id is null")
	}
	if !rules.Allows(CategoryTrafficSource, row.TrafficSource) {
		return nil, categorical(CategoryTrafficSource, deref(row.TrafficSource))
	}
	return &domain.User{
		UserID:           *row.UserID,
		CountryCode:      row.CountryCode,
		RegistrationTime: row.RegistrationTime,
		TrafficSource:    *row.TrafficSource,
	}, nil
}

// ValidateBalance checks a cleansed balance row. A categorical failure wins
// over any domain failure on the same row. The returned entry has no
// BalanceID yet and its owner is not checked against users.
func ValidateBalance(row domain.RawBalance, rules *RuleSet) (*domain.BalanceEntry, *Rejection) {
	if !rules.Allows(CategoryOperationType, row.OperationType) {
		return nil, categorical(CategoryOperationType, deref(row.OperationType))
	}
	if row.OperationTime == nil {
		return nil, domainConstraint(TagMissingOperationTime, "operation_time is not null", "operation_time is null")
	}
	if row.OperationAmountUSD == nil {
		return nil, domainConstraint(TagMissingAmount, "operation_amount_usd is not null", "operation_amount_usd is null")
	}
	if amount := *row.OperationAmountUSD; math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, domainConstraint(TagNonFiniteAmount, "operation_amount_usd is finite",
			fmt.Sprintf("operation_amount_usd %v is not finite", amount))
	}
	if amount := *row.OperationAmountUSD; amount < 0 {
		return nil, domainConstraint(TagNegativeAmount, "operation_amount_usd >= 0",
			fmt.Sprintf("operation_amount_usd %v is not >= 0", amount))
	}
	if row.UserID == nil {
		return nil, orphan(nil)
	}
	return &domain.BalanceEntry{
		UserID:             *row.UserID,
		OperationTime:      *row.OperationTime,
		OperationType:      *row.OperationType,
		OperationAmountUSD: *row.OperationAmountUSD,
	}, nil
}

// ValidateOrder checks a cleansed order row. An order without a close time
// is still open and is accepted.
func ValidateOrder(row domain.RawOrder) (*domain.Order, *Rejection) {
	if row.OpenTime == nil {
		return nil, domainConstraint(TagMissingOpenTime, "open_time is not null", "open_time is null")
	}
	if row.CloseTime != nil && row.OpenTime.After(*row.CloseTime) {
		return nil, domainConstraint(TagOpenAfterClose, "open_time <= close_time",
			fmt.Sprintf("open_time %s is after close_time %s", row.OpenTime.UTC().Format(timeLayout), row.CloseTime.UTC().Format(timeLayout)))
	}
	if row.UserID == nil {
		return nil, orphan(nil)
	}
	return &domain.Order{
		UserID:    *row.UserID,
		Symbol:    row.Symbol,
		OpenTime:  *row.OpenTime,
		CloseTime: row.CloseTime,
		ProfitUSD: row.ProfitUSD,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return "<null>"
	}
	return *s
}
