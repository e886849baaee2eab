// Package memory is an in-process store backend. It keeps staging, rules,
// outputs and run rows in maps guarded by a mutex, and enforces the same
// output constraints as the database schemas.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/pipeline"
)

var _ pipeline.Store = (*Store)(nil)

const maxErrorMessageLength = 2000

// Store is an in-memory pipeline.Store.
type Store struct {
	mu sync.RWMutex

	rules   []domain.CategoryRule
	staging domain.Staging

	users    []domain.User
	balance  []domain.BalanceEntry
	orders   []domain.Order
	rejected []domain.RejectedRecord

	runs     map[string]*domain.Run
	runOrder []string

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		runs: make(map[string]*domain.Run),
		now:  time.Now,
	}
}

// SetCategoryRules replaces the rule registry.
func (s *Store) SetCategoryRules(rules ...domain.CategoryRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]domain.CategoryRule(nil), rules...)
}

// AddCategoryRule registers one allowed value.
func (s *Store) AddCategoryRule(category, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, domain.CategoryRule{Category: category, AllowedValue: value})
}

// SetStaging replaces the staging relations.
func (s *Store) SetStaging(staging domain.Staging) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging = domain.Staging{
		Customers: append([]domain.RawCustomer(nil), staging.Customers...),
		Balance:   append([]domain.RawBalance(nil), staging.Balance...),
		Orders:    append([]domain.RawOrder(nil), staging.Orders...),
	}
}

// UpdateStaging lets fn edit the staging relations in place.
func (s *Store) UpdateStaging(fn func(staging *domain.Staging)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.staging)
}

func (s *Store) ListCategoryRules(ctx context.Context, categories []string) ([]domain.CategoryRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CategoryRule, 0, len(s.rules))
	for _, r := range s.rules {
		if want[r.Category] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) ReadCustomers(ctx context.Context) ([]domain.RawCustomer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RawCustomer(nil), s.staging.Customers...), nil
}

func (s *Store) ReadBalance(ctx context.Context) ([]domain.RawBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RawBalance(nil), s.staging.Balance...), nil
}

func (s *Store) ReadOrders(ctx context.Context) ([]domain.RawOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RawOrder(nil), s.staging.Orders...), nil
}

// CommitBatch checks the batch against the output constraints and swaps it
// in. On a violation nothing changes.
func (s *Store) CommitBatch(ctx context.Context, batch *domain.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkConstraints(batch); err != nil {
		return fmt.Errorf("CommitBatch: %w", err)
	}

	users := append([]domain.User(nil), batch.Users...)
	balance := append([]domain.BalanceEntry(nil), batch.Balance...)
	orders := append([]domain.Order(nil), batch.Orders...)
	rejected := append([]domain.RejectedRecord(nil), batch.Rejected...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.balance, s.orders, s.rejected = users, balance, orders, rejected
	return nil
}

func checkConstraints(batch *domain.Batch) error {
	userIDs := make(map[int64]bool, len(batch.Users))
	for _, u := range batch.Users {
		if userIDs[u.UserID] {
			return fmt.Errorf("duplicate user_id %d", u.UserID)
		}
		userIDs[u.UserID] = true
	}

	balanceIDs := make(map[int64]bool, len(batch.Balance))
	for _, b := range batch.Balance {
		if balanceIDs[b.BalanceID] {
			return fmt.Errorf("duplicate balance_id %d", b.BalanceID)
		}
		balanceIDs[b.BalanceID] = true
		if !userIDs[b.UserID] {
			return fmt.Errorf("balance %d references missing user %d", b.BalanceID, b.UserID)
		}
		if !(b.OperationAmountUSD >= 0) {
			return fmt.Errorf("balance %d has negative amount", b.BalanceID)
		}
	}

	orderIDs := make(map[int64]bool, len(batch.Orders))
	for _, o := range batch.Orders {
		if orderIDs[o.OrderID] {
			return fmt.Errorf("duplicate order_id %d", o.OrderID)
		}
		orderIDs[o.OrderID] = true
		if !userIDs[o.UserID] {
			return fmt.Errorf("order %d references missing user %d", o.OrderID, o.UserID)
		}
		if o.CloseTime != nil && o.OpenTime.After(*o.CloseTime) {
			return fmt.Errorf("order %d opens after it closes", o.OrderID)
		}
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.User(nil), s.users...), nil
}

func (s *Store) ListBalanceEntries(ctx context.Context) ([]domain.BalanceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.BalanceEntry(nil), s.balance...), nil
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Order(nil), s.orders...), nil
}

func (s *Store) ListRejected(ctx context.Context, category string) ([]domain.RejectedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RejectedRecord, 0, len(s.rejected))
	for _, r := range s.rejected {
		if category == "" || r.Category == category {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) StartRun(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	runID := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[runID] = &domain.Run{
		RunID:     runID,
		StartedAt: s.now().UTC(),
		Status:    domain.RunStatusRunning,
	}
	s.runOrder = append(s.runOrder, runID)
	return runID, nil
}

func (s *Store) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
		if len(msg) > maxErrorMessageLength {
			msg = msg[:maxErrorMessageLength]
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[runID]; ok {
		finished := s.now().UTC()
		run.FinishedAt = &finished
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = msg
	}
}

func (s *Store) MarkRunSucceeded(ctx context.Context, runID string, summary *domain.Summary) error {
	payload, err := domain.EncodeSummary(summary)
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("MarkRunSucceeded: run %s not found", runID)
	}
	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.Status = domain.RunStatusSuccess
	run.Summary = payload
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Run, 0, len(s.runOrder))
	for i := len(s.runOrder) - 1; i >= 0; i-- {
		out = append(out, *s.runs[s.runOrder[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
