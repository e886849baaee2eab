package pipeline

import (
	"time"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

func str(s string) *string   { return &s }
func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func testRules() *RuleSet {
	return NewRuleSet([]domain.CategoryRule{
		{Category: CategoryTrafficSource, AllowedValue: "google"},
		{Category: CategoryTrafficSource, AllowedValue: "organic"},
		{Category: CategoryTrafficSource, AllowedValue: "referral"},
		{Category: CategoryOperationType, AllowedValue: "deposit"},
		{Category: CategoryOperationType, AllowedValue: "withdrawal"},
	})
}
