package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// ListCategoryRulesWithClient returns the allowed values of the given
// categories from the category_rules table, in registry order.
func ListCategoryRulesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, categories []string) ([]domain.CategoryRule, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	q := client.Query(fmt.Sprintf(`
		SELECT category_name, allowed_value
		FROM %s
		WHERE category_name IN UNNEST(@categories)
		ORDER BY category_name, sort_order
	`, ds.Table(categoryRulesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "categories", Value: categories},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategoryRules: query read: %w", err)
	}

	var rules []domain.CategoryRule
	for {
		var r CategoryRuleRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategoryRules: iter next: %w", err)
		}
		rules = append(rules, domain.CategoryRule{Category: r.CategoryName, AllowedValue: r.AllowedValue})
	}
	return rules, nil
}
