package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

const listCategoryRulesQuery = `
	SELECT t.typname AS category_name, e.enumlabel AS allowed_value
	FROM pg_type t
	JOIN pg_enum e ON e.enumtypid = t.oid
	WHERE t.typname = ANY($1)
	ORDER BY t.typname, e.enumsortorder`

// ListCategoryRules reads the labels of the enum types named like the
// categories. A category without an enum type yields no rules.
func (s *Store) ListCategoryRules(ctx context.Context, categories []string) ([]domain.CategoryRule, error) {
	var rules []domain.CategoryRule
	if err := s.db.SelectContext(ctx, &rules, listCategoryRulesQuery, pq.Array(categories)); err != nil {
		return nil, fmt.Errorf("ListCategoryRules: select: %w", err)
	}
	return rules, nil
}
