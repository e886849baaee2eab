package postgres

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

type rejectedRow struct {
	Category string `db:"category"`
	Entity   string `db:"entity"`
	Kind     string `db:"kind"`
	Rule     string `db:"violated_rule"`
	Reason   string `db:"reason"`
	Offset   int    `db:"row_offset"`
	Raw      []byte `db:"raw"`
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	sb := userOutStruct.SelectFrom(tableUsers)
	sb.OrderBy("user_id")
	query, args := sb.Build()

	var users []domain.User
	if err := s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("ListUsers: select: %w", err)
	}
	return users, nil
}

func (s *Store) ListBalanceEntries(ctx context.Context) ([]domain.BalanceEntry, error) {
	sb := balanceOutStruct.SelectFrom(tableBalance)
	sb.OrderBy("balance_id")
	query, args := sb.Build()

	var entries []domain.BalanceEntry
	if err := s.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("ListBalanceEntries: select: %w", err)
	}
	return entries, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	sb := orderOutStruct.SelectFrom(tableOrders)
	sb.OrderBy("order_id")
	query, args := sb.Build()

	var orders []domain.Order
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("ListOrders: select: %w", err)
	}
	return orders, nil
}

func (s *Store) ListRejected(ctx context.Context, category string) ([]domain.RejectedRecord, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("category", "entity", "kind", "violated_rule", "reason", "row_offset", "raw")
	sb.From(tableRejected)
	if category != "" {
		sb.Where(sb.Equal("category", category))
	}
	sb.OrderBy("category", "entity", "row_offset")
	query, args := sb.Build()

	var rows []rejectedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ListRejected: select: %w", err)
	}

	out := make([]domain.RejectedRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.RejectedRecord{
			Category: r.Category,
			Entity:   domain.Entity(r.Entity),
			Kind:     domain.RejectionKind(r.Kind),
			Rule:     r.Rule,
			Reason:   r.Reason,
			Offset:   r.Offset,
			Raw:      r.Raw,
		})
	}
	return out, nil
}
