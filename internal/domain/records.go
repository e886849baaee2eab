package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// RawCustomer is one untyped staging row of the customers source.
// Every field is nullable; values are exactly as received.
type RawCustomer struct {
	Offset int `json:"-" db:"-"` // position in the staging read, used for tie-breaks

	UserID           *int64     `json:"user_id" db:"user_id"`
	CountryCode      *string    `json:"country_code" db:"country_code"`
	RegistrationTime *time.Time `json:"registration_time" db:"registration_time"`
	TrafficSource    *string    `json:"traffic_source" db:"traffic_source"`
}

// RawBalance is one untyped staging row of the customer_balance source.
type RawBalance struct {
	Offset int `json:"-" db:"-"`

	UserID             *int64     `json:"user_id" db:"user_id"`
	OperationTime      *time.Time `json:"operation_time" db:"operation_time"`
	OperationType      *string    `json:"operation_type" db:"operation_type"`
	OperationAmountUSD *float64   `json:"operation_amount_usd" db:"operation_amount_usd"`
}

// RawOrder is one untyped staging row of the customer_orders source.
type RawOrder struct {
	Offset int `json:"-" db:"-"`

	UserID    *int64     `json:"user_id" db:"user_id"`
	Symbol    *string    `json:"symbol" db:"symbol"`
	OpenTime  *time.Time `json:"open_time" db:"open_time"`
	CloseTime *time.Time `json:"close_time" db:"close_time"`
	ProfitUSD *float64   `json:"profit_usd" db:"profit_usd"`
}

// CategoryRule is one (category, allowed value) pair of the rule registry.
type CategoryRule struct {
	Category     string `json:"category" db:"category_name"`
	AllowedValue string `json:"allowed_value" db:"allowed_value"`
}

// User is the primary entity: exactly one per raw customer identifier.
type User struct {
	UserID           int64      `json:"user_id" db:"user_id"`
	CountryCode      *string    `json:"country_code" db:"country_code"`
	RegistrationTime *time.Time `json:"registration_time" db:"registration_time"`
	TrafficSource    string     `json:"traffic_source" db:"traffic_source"`
}

// BalanceEntry is a dependent entity owned by a User.
type BalanceEntry struct {
	BalanceID          int64     `json:"balance_id" db:"balance_id"`
	UserID             int64     `json:"user_id" db:"user_id"`
	OperationTime      time.Time `json:"operation_time" db:"operation_time"`
	OperationType      string    `json:"operation_type" db:"operation_type"`
	OperationAmountUSD float64   `json:"operation_amount_usd" db:"operation_amount_usd"`
}

// Order is a dependent entity owned by a User. ProfitUSD is signed.
// A nil CloseTime is an order that is still open.
type Order struct {
	OrderID   int64      `json:"order_id" db:"order_id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Symbol    *string    `json:"symbol" db:"symbol"`
	OpenTime  time.Time  `json:"open_time" db:"open_time"`
	CloseTime *time.Time `json:"close_time" db:"close_time"`
	ProfitUSD *float64   `json:"profit_usd" db:"profit_usd"`
}

// MarshalJSON renders a non-finite amount as a string, since JSON has no
// NaN or Inf.
func (b BalanceEntry) MarshalJSON() ([]byte, error) {
	type plain BalanceEntry
	return json.Marshal(struct {
		plain
		OperationAmountUSD any `json:"operation_amount_usd"`
	}{plain(b), jsonFloat(b.OperationAmountUSD)})
}

// MarshalJSON renders a non-finite profit as a string.
func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	var profit any
	if o.ProfitUSD != nil {
		profit = jsonFloat(*o.ProfitUSD)
	}
	return json.Marshal(struct {
		plain
		ProfitUSD any `json:"profit_usd"`
	}{plain(o), profit})
}

func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return v
}
