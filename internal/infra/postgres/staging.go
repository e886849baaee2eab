package postgres

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// Staging tables have no key, so rows are read in a total order over all
// columns. Equal staging contents always yield equal offsets.

func (s *Store) ReadCustomers(ctx context.Context) ([]domain.RawCustomer, error) {
	sb := customerStruct.SelectFrom(tableCustomers)
	sb.OrderBy(orderAllColumns(customerStruct)...)
	query, args := sb.Build()

	var rows []domain.RawCustomer
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ReadCustomers: select: %w", err)
	}
	return rows, nil
}

func (s *Store) ReadBalance(ctx context.Context) ([]domain.RawBalance, error) {
	sb := balanceStruct.SelectFrom(tableCustomerBalance)
	sb.OrderBy(orderAllColumns(balanceStruct)...)
	query, args := sb.Build()

	var rows []domain.RawBalance
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ReadBalance: select: %w", err)
	}
	return rows, nil
}

func (s *Store) ReadOrders(ctx context.Context) ([]domain.RawOrder, error) {
	sb := orderStruct.SelectFrom(tableCustomerOrders)
	sb.OrderBy(orderAllColumns(orderStruct)...)
	query, args := sb.Build()

	var rows []domain.RawOrder
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ReadOrders: select: %w", err)
	}
	return rows, nil
}

func orderAllColumns(st *sqlbuilder.Struct) []string {
	cols := st.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c + " NULLS LAST"
	}
	return out
}
