package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// RuleSet is a snapshot of the allowed categorical values, loaded once per run.
type RuleSet struct {
	allowed map[string]map[string]bool // category -> set of allowed values
	ordered map[string][]string        // category -> allowed values in registry order
}

// LoadRuleSet queries the live rule source for the given categories.
func LoadRuleSet(ctx context.Context, repo CategoryRuleRepository, categories ...string) (*RuleSet, error) {
	rows, err := repo.ListCategoryRules(ctx, categories)
	if err != nil {
		return nil, fmt.Errorf("LoadRuleSet: list category rules: %w", err)
	}
	return NewRuleSet(rows), nil
}

// NewRuleSet builds a RuleSet from registry rows. Category names are
// normalized; allowed values are kept verbatim because they are the labels
// the output columns are cast to. A label that is not already lower-case
// and trimmed never matches a cleansed staging value.
func NewRuleSet(rows []domain.CategoryRule) *RuleSet {
	rs := &RuleSet{
		allowed: make(map[string]map[string]bool),
		ordered: make(map[string][]string),
	}
	for _, row := range rows {
		category := normalizeCategory(row.Category)
		value := row.AllowedValue
		if category == "" || value == "" {
			continue
		}
		if rs.allowed[category] == nil {
			rs.allowed[category] = make(map[string]bool)
		}
		if rs.allowed[category][value] {
			continue
		}
		rs.allowed[category][value] = true
		rs.ordered[category] = append(rs.ordered[category], value)
	}
	return rs
}

// AllowedValues returns the allowed values of a category. An unknown
// category yields an empty set.
func (r *RuleSet) AllowedValues(category string) []string {
	values := r.ordered[normalizeCategory(category)]
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Allows reports whether value is a member of the category's allowed set.
// A nil value is never allowed.
func (r *RuleSet) Allows(category string, value *string) bool {
	if value == nil {
		return false
	}
	return r.allowed[normalizeCategory(category)][*value]
}

// Categories returns the categories present in the snapshot, sorted.
func (r *RuleSet) Categories() []string {
	out := make([]string, 0, len(r.ordered))
	for c := range r.ordered {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
