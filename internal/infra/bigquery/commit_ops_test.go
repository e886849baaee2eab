package bigquery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

func TestCommitScript_IsOneTransaction(t *testing.T) {
	script := commitScript(Dataset{ProjectID: "p", DatasetID: "d"})

	begin := strings.Index(script, "BEGIN TRANSACTION;")
	commit := strings.Index(script, "COMMIT TRANSACTION;")
	rollback := strings.Index(script, "ROLLBACK TRANSACTION;")
	require.NotEqual(t, -1, begin)
	require.NotEqual(t, -1, commit)
	require.NotEqual(t, -1, rollback)
	assert.Less(t, begin, commit)
	assert.Less(t, commit, rollback)

	// Deletes precede inserts, and dependents are deleted before users.
	assert.Less(t, strings.Index(script, "DELETE FROM `p.d.orders`"), strings.Index(script, "DELETE FROM `p.d.users`"))
	assert.Less(t, strings.Index(script, "DELETE FROM `p.d.rejected_records`"), strings.Index(script, "INSERT INTO `p.d.users`"))
	assert.Less(t, strings.Index(script, "INSERT INTO `p.d.users`"), strings.Index(script, "INSERT INTO `p.d.balance`"))

	for _, param := range []string{"@users", "@balance", "@orders", "@rejected"} {
		assert.Contains(t, script, param)
	}
}

func TestCommitParameters(t *testing.T) {
	t.Run("empty batch keeps typed empty arrays", func(t *testing.T) {
		params := commitParameters(&domain.Batch{})
		require.Len(t, params, 4)
		for _, p := range params {
			assert.NotNil(t, p.Value, p.Name)
		}
		assert.Equal(t, []UserRow{}, params[0].Value)
		assert.Equal(t, []RejectedRow{}, params[3].Value)
	})

	t.Run("rows are converted", func(t *testing.T) {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		params := commitParameters(&domain.Batch{
			Users:   []domain.User{{UserID: 1, TrafficSource: "google"}},
			Balance: []domain.BalanceEntry{{BalanceID: 1, UserID: 1, OperationTime: at, OperationType: "deposit", OperationAmountUSD: 5}},
			Orders:  []domain.Order{{OrderID: 1, UserID: 1, OpenTime: at}},
		})

		users := params[0].Value.([]UserRow)
		require.Len(t, users, 1)
		assert.Equal(t, "google", users[0].TrafficSource)

		balance := params[1].Value.([]BalanceEntryRow)
		require.Len(t, balance, 1)
		assert.Equal(t, 5.0, balance[0].OperationAmountUSD)

		orders := params[2].Value.([]OrderOutRow)
		require.Len(t, orders, 1)
		assert.False(t, orders[0].Symbol.Valid)
	})
}

func TestCheckCommitSize(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	batch := &domain.Batch{
		Users:   []domain.User{{UserID: 1, TrafficSource: "google"}, {UserID: 2, TrafficSource: "organic"}},
		Balance: []domain.BalanceEntry{{BalanceID: 1, UserID: 1, OperationTime: at, OperationType: "deposit", OperationAmountUSD: 5}},
	}

	t.Run("fits", func(t *testing.T) {
		assert.NoError(t, checkCommitSize(batch, maxCommitRequestBytes))
		assert.NoError(t, checkCommitSize(&domain.Batch{}, 64))
	})

	t.Run("too large", func(t *testing.T) {
		err := checkCommitSize(batch, 64)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCommitTooLarge)
		assert.Contains(t, err.Error(), "users=2 balance=1")
	})
}
