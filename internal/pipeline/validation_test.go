package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

func TestValidateUser(t *testing.T) {
	rules := testRules()

	tests := []struct {
		name    string
		row     domain.RawCustomer
		wantTag string
	}{
		{"allowed source", domain.RawCustomer{UserID: i64(1), TrafficSource: str("google")}, ""},
		{"unknown source", domain.RawCustomer{UserID: i64(1), TrafficSource: str("facebook")}, "unknown_traffic_source"},
		{"null source", domain.RawCustomer{UserID: i64(1)}, "unknown_traffic_source"},
		{"null user id", domain.RawCustomer{TrafficSource: str("google")}, TagMissingUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, rej := ValidateUser(tt.row, rules)
			if tt.wantTag == "" {
				require.Nil(t, rej)
				require.NotNil(t, user)
				assert.Equal(t, *tt.row.UserID, user.UserID)
				return
			}
			require.NotNil(t, rej)
			assert.Nil(t, user)
			assert.Equal(t, tt.wantTag, rej.Tag)
		})
	}
}

func TestValidateBalance(t *testing.T) {
	rules := testRules()
	at := ts("2024-01-01T10:00:00Z")

	tests := []struct {
		name     string
		row      domain.RawBalance
		wantTag  string
		wantKind domain.RejectionKind
	}{
		{"valid deposit", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("deposit"), OperationAmountUSD: f64(10)}, "", ""},
		{"zero amount", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("withdrawal"), OperationAmountUSD: f64(0)}, "", ""},
		{"negative amount", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("deposit"), OperationAmountUSD: f64(-5)}, TagNegativeAmount, domain.RejectionDomain},
		{"nan amount", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("deposit"), OperationAmountUSD: f64(math.NaN())}, TagNonFiniteAmount, domain.RejectionDomain},
		{"positive infinite amount", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("deposit"), OperationAmountUSD: f64(math.Inf(1))}, TagNonFiniteAmount, domain.RejectionDomain},
		{"negative infinite amount", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("deposit"), OperationAmountUSD: f64(math.Inf(-1))}, TagNonFiniteAmount, domain.RejectionDomain},
		{"null amount", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("deposit")}, TagMissingAmount, domain.RejectionDomain},
		{"null time", domain.RawBalance{UserID: i64(1), OperationType: str("deposit"), OperationAmountUSD: f64(1)}, TagMissingOperationTime, domain.RejectionDomain},
		{"unknown type", domain.RawBalance{UserID: i64(1), OperationTime: at, OperationType: str("bonus"), OperationAmountUSD: f64(1)}, "unknown_operation_type", domain.RejectionCategorical},
		{"categorical wins over domain", domain.RawBalance{UserID: i64(1), OperationType: str("bonus"), OperationAmountUSD: f64(-1)}, "unknown_operation_type", domain.RejectionCategorical},
		{"null owner", domain.RawBalance{OperationTime: at, OperationType: str("deposit"), OperationAmountUSD: f64(1)}, TagOrphanOwner, domain.RejectionReferential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, rej := ValidateBalance(tt.row, rules)
			if tt.wantTag == "" {
				require.Nil(t, rej)
				require.NotNil(t, entry)
				assert.GreaterOrEqual(t, entry.OperationAmountUSD, 0.0)
				return
			}
			require.NotNil(t, rej)
			assert.Equal(t, tt.wantTag, rej.Tag)
			assert.Equal(t, tt.wantKind, rej.Kind)
		})
	}
}

func TestValidateOrder(t *testing.T) {
	tests := []struct {
		name    string
		row     domain.RawOrder
		wantTag string
	}{
		{"closed order", domain.RawOrder{UserID: i64(1), OpenTime: ts("2024-01-01T10:00:00Z"), CloseTime: ts("2024-01-01T11:00:00Z")}, ""},
		{"open equals close", domain.RawOrder{UserID: i64(1), OpenTime: ts("2024-01-01T10:00:00Z"), CloseTime: ts("2024-01-01T10:00:00Z")}, ""},
		{"still open", domain.RawOrder{UserID: i64(1), OpenTime: ts("2024-01-01T10:00:00Z")}, ""},
		{"open after close", domain.RawOrder{UserID: i64(1), OpenTime: ts("2024-01-02T00:00:00Z"), CloseTime: ts("2024-01-01T00:00:00Z")}, TagOpenAfterClose},
		{"null open time", domain.RawOrder{UserID: i64(1), CloseTime: ts("2024-01-01T00:00:00Z")}, TagMissingOpenTime},
		{"null owner", domain.RawOrder{OpenTime: ts("2024-01-01T10:00:00Z")}, TagOrphanOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, rej := ValidateOrder(tt.row)
			if tt.wantTag == "" {
				require.Nil(t, rej)
				require.NotNil(t, order)
				if order.CloseTime != nil {
					assert.False(t, order.OpenTime.After(*order.CloseTime))
				}
				return
			}
			require.NotNil(t, rej)
			assert.Equal(t, tt.wantTag, rej.Tag)
		})
	}
}

func TestOwnerIndex(t *testing.T) {
	idx := NewOwnerIndex([]domain.User{{UserID: 1}, {UserID: 3}})

	assert.True(t, idx.ValidOwner(1))
	assert.True(t, idx.ValidOwner(3))
	assert.False(t, idx.ValidOwner(2))
	assert.Equal(t, 2, idx.Len())
}
