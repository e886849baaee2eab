package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/trading-ingest/internal/domain"
	"github.com/dvloznov/trading-ingest/internal/logger"
)

type balanceCandidate struct {
	raw   domain.RawBalance
	entry domain.BalanceEntry
}

type orderCandidate struct {
	raw   domain.RawOrder
	order domain.Order
}

// BuildBatch computes the full output of one run in memory: cleansing,
// deduplication, validation, referential filtering and audit capture.
// The user, balance and order passes run concurrently; the referential
// pass waits for all three. Staging offsets are reassigned from slice
// positions, and surrogate keys follow staging order.
func BuildBatch(ctx context.Context, runID string, staging *domain.Staging, rules *RuleSet, opts Options) (*domain.Batch, *domain.Summary, error) {
	log := logger.FromContext(ctx)

	customers := withCustomerOffsets(staging.Customers)
	balance := withBalanceOffsets(staging.Balance)
	orders := withOrderOffsets(staging.Orders)

	sink := NewAuditSink(opts.AuditAllRejections)
	summary := domain.NewSummary(runID)

	var (
		users       []domain.User
		duplicates  int
		balanceRows []balanceCandidate
		orderRows   []orderCandidate
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, duplicates, err = userPass(gctx, customers, rules, sink)
		return err
	})
	g.Go(func() error {
		var err error
		balanceRows, err = balancePass(gctx, balance, rules, sink)
		return err
	})
	g.Go(func() error {
		var err error
		orderRows, err = orderPass(gctx, orders, sink)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("BuildBatch: validate: %w", err)
	}

	owners := NewOwnerIndex(users)

	batch := &domain.Batch{RunID: runID, Users: users}
	for _, c := range balanceRows {
		if !owners.ValidOwner(c.entry.UserID) {
			sink.Record(domain.EntityBalance, c.raw, c.raw.Offset, orphan(c.raw.UserID))
			continue
		}
		entry := c.entry
		entry.BalanceID = int64(len(batch.Balance) + 1)
		batch.Balance = append(batch.Balance, entry)
	}
	for _, c := range orderRows {
		if !owners.ValidOwner(c.order.UserID) {
			sink.Record(domain.EntityOrder, c.raw, c.raw.Offset, orphan(c.raw.UserID))
			continue
		}
		order := c.order
		order.OrderID = int64(len(batch.Orders) + 1)
		batch.Orders = append(batch.Orders, order)
	}
	batch.Rejected = sink.Records()

	summary.Entities[domain.EntityUser] = domain.EntityCounts{
		Staged:     len(customers),
		Duplicates: duplicates,
		Accepted:   len(batch.Users),
		Rejected:   len(customers) - duplicates - len(batch.Users),
	}
	summary.Entities[domain.EntityBalance] = domain.EntityCounts{
		Staged:   len(balance),
		Accepted: len(batch.Balance),
		Rejected: len(balance) - len(batch.Balance),
	}
	summary.Entities[domain.EntityOrder] = domain.EntityCounts{
		Staged:   len(orders),
		Accepted: len(batch.Orders),
		Rejected: len(orders) - len(batch.Orders),
	}
	summary.Rejections = sink.Counts()
	summary.Audited = len(batch.Rejected)

	log.Debug().
		Str("run_id", runID).
		Int("users", len(batch.Users)).
		Int("balance", len(batch.Balance)).
		Int("orders", len(batch.Orders)).
		Int("audited", summary.Audited).
		Msg("batch computed")

	return batch, summary, nil
}

func userPass(ctx context.Context, rows []domain.RawCustomer, rules *RuleSet, sink *AuditSink) ([]domain.User, int, error) {
	cleansed := make([]domain.RawCustomer, 0, len(rows))
	for _, raw := range rows {
		c := CleanseCustomer(raw)
		if c.UserID == nil {
			_, rej := ValidateUser(c, rules)
			sink.Record(domain.EntityUser, raw, raw.Offset, rej)
			continue
		}
		cleansed = append(cleansed, c)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	survivors, collapsed := Deduplicate(cleansed)

	users := make([]domain.User, 0, len(survivors))
	for _, c := range survivors {
		user, rej := ValidateUser(c, rules)
		if rej != nil {
			sink.Record(domain.EntityUser, rows[c.Offset], c.Offset, rej)
			continue
		}
		users = append(users, *user)
	}
	return users, collapsed, ctx.Err()
}

func balancePass(ctx context.Context, rows []domain.RawBalance, rules *RuleSet, sink *AuditSink) ([]balanceCandidate, error) {
	out := make([]balanceCandidate, 0, len(rows))
	for _, raw := range rows {
		entry, rej := ValidateBalance(CleanseBalance(raw), rules)
		if rej != nil {
			sink.Record(domain.EntityBalance, raw, raw.Offset, rej)
			continue
		}
		out = append(out, balanceCandidate{raw: raw, entry: *entry})
	}
	return out, ctx.Err()
}

func orderPass(ctx context.Context, rows []domain.RawOrder, sink *AuditSink) ([]orderCandidate, error) {
	out := make([]orderCandidate, 0, len(rows))
	for _, raw := range rows {
		order, rej := ValidateOrder(CleanseOrder(raw))
		if rej != nil {
			sink.Record(domain.EntityOrder, raw, raw.Offset, rej)
			continue
		}
		out = append(out, orderCandidate{raw: raw, order: *order})
	}
	return out, ctx.Err()
}

func withCustomerOffsets(rows []domain.RawCustomer) []domain.RawCustomer {
	out := make([]domain.RawCustomer, len(rows))
	for i, r := range rows {
		r.Offset = i
		out[i] = r
	}
	return out
}

func withBalanceOffsets(rows []domain.RawBalance) []domain.RawBalance {
	out := make([]domain.RawBalance, len(rows))
	for i, r := range rows {
		r.Offset = i
		out[i] = r
	}
	return out
}

func withOrderOffsets(rows []domain.RawOrder) []domain.RawOrder {
	out := make([]domain.RawOrder, len(rows))
	for i, r := range rows {
		r.Offset = i
		out[i] = r
	}
	return out
}
