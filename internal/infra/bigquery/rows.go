package bigquery

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

type CustomerRow struct {
	UserID           bigquery.NullInt64     `bigquery:"user_id"`           // NULLABLE
	CountryCode      bigquery.NullString    `bigquery:"country_code"`      // NULLABLE
	RegistrationTime bigquery.NullTimestamp `bigquery:"registration_time"` // NULLABLE
	TrafficSource    bigquery.NullString    `bigquery:"traffic_source"`    // NULLABLE
}

type BalanceRow struct {
	UserID             bigquery.NullInt64     `bigquery:"user_id"`              // NULLABLE
	OperationTime      bigquery.NullTimestamp `bigquery:"operation_time"`       // NULLABLE
	OperationType      bigquery.NullString    `bigquery:"operation_type"`       // NULLABLE
	OperationAmountUSD bigquery.NullFloat64   `bigquery:"operation_amount_usd"` // NULLABLE
}

type OrderRow struct {
	UserID    bigquery.NullInt64     `bigquery:"user_id"`    // NULLABLE
	Symbol    bigquery.NullString    `bigquery:"symbol"`     // NULLABLE
	OpenTime  bigquery.NullTimestamp `bigquery:"open_time"`  // NULLABLE
	CloseTime bigquery.NullTimestamp `bigquery:"close_time"` // NULLABLE
	ProfitUSD bigquery.NullFloat64   `bigquery:"profit_usd"` // NULLABLE
}

type CategoryRuleRow struct {
	CategoryName string `bigquery:"category_name"` // REQUIRED
	AllowedValue string `bigquery:"allowed_value"` // REQUIRED
}

type UserRow struct {
	UserID           int64                  `bigquery:"user_id"`           // REQUIRED
	CountryCode      bigquery.NullString    `bigquery:"country_code"`      // NULLABLE
	RegistrationTime bigquery.NullTimestamp `bigquery:"registration_time"` // NULLABLE
	TrafficSource    string                 `bigquery:"traffic_source"`    // REQUIRED
}

type BalanceEntryRow struct {
	BalanceID          int64     `bigquery:"balance_id"`           // REQUIRED
	UserID             int64     `bigquery:"user_id"`              // REQUIRED
	OperationTime      time.Time `bigquery:"operation_time"`       // REQUIRED
	OperationType      string    `bigquery:"operation_type"`       // REQUIRED
	OperationAmountUSD float64   `bigquery:"operation_amount_usd"` // REQUIRED
}

type OrderOutRow struct {
	OrderID   int64                  `bigquery:"order_id"`   // REQUIRED
	UserID    int64                  `bigquery:"user_id"`    // REQUIRED
	Symbol    bigquery.NullString    `bigquery:"symbol"`     // NULLABLE
	OpenTime  time.Time              `bigquery:"open_time"`  // REQUIRED
	CloseTime bigquery.NullTimestamp `bigquery:"close_time"` // NULLABLE
	ProfitUSD bigquery.NullFloat64   `bigquery:"profit_usd"` // NULLABLE
}

// RejectedRow carries raw as a JSON string; the SQL side converts with
// PARSE_JSON / TO_JSON_STRING.
type RejectedRow struct {
	Category string `bigquery:"category"`      // REQUIRED
	Entity   string `bigquery:"entity"`        // REQUIRED
	Kind     string `bigquery:"kind"`          // REQUIRED
	Rule     string `bigquery:"violated_rule"` // REQUIRED
	Reason   string `bigquery:"reason"`        // REQUIRED
	Offset   int64  `bigquery:"row_offset"`    // REQUIRED
	Raw      string `bigquery:"raw"`           // REQUIRED (JSON)
}

type RunRow struct {
	RunID        string                 `bigquery:"run_id"`        // REQUIRED
	StartedTS    time.Time              `bigquery:"started_ts"`    // REQUIRED
	FinishedTS   bigquery.NullTimestamp `bigquery:"finished_ts"`   // NULLABLE
	Status       string                 `bigquery:"status"`        // REQUIRED
	ErrorMessage bigquery.NullString    `bigquery:"error_message"` // NULLABLE
	Summary      bigquery.NullString    `bigquery:"summary"`       // NULLABLE (JSON as string)
}

func (r CustomerRow) toDomain() domain.RawCustomer {
	return domain.RawCustomer{
		UserID:           fromNullInt64(r.UserID),
		CountryCode:      fromNullString(r.CountryCode),
		RegistrationTime: fromNullTimestamp(r.RegistrationTime),
		TrafficSource:    fromNullString(r.TrafficSource),
	}
}

func (r BalanceRow) toDomain() domain.RawBalance {
	return domain.RawBalance{
		UserID:             fromNullInt64(r.UserID),
		OperationTime:      fromNullTimestamp(r.OperationTime),
		OperationType:      fromNullString(r.OperationType),
		OperationAmountUSD: fromNullFloat64(r.OperationAmountUSD),
	}
}

func (r OrderRow) toDomain() domain.RawOrder {
	return domain.RawOrder{
		UserID:    fromNullInt64(r.UserID),
		Symbol:    fromNullString(r.Symbol),
		OpenTime:  fromNullTimestamp(r.OpenTime),
		CloseTime: fromNullTimestamp(r.CloseTime),
		ProfitUSD: fromNullFloat64(r.ProfitUSD),
	}
}

func newUserRow(u domain.User) UserRow {
	return UserRow{
		UserID:           u.UserID,
		CountryCode:      toNullString(u.CountryCode),
		RegistrationTime: toNullTimestamp(u.RegistrationTime),
		TrafficSource:    u.TrafficSource,
	}
}

func (r UserRow) toDomain() domain.User {
	return domain.User{
		UserID:           r.UserID,
		CountryCode:      fromNullString(r.CountryCode),
		RegistrationTime: fromNullTimestamp(r.RegistrationTime),
		TrafficSource:    r.TrafficSource,
	}
}

func newBalanceEntryRow(b domain.BalanceEntry) BalanceEntryRow {
	return BalanceEntryRow(b)
}

func (r BalanceEntryRow) toDomain() domain.BalanceEntry {
	return domain.BalanceEntry(r)
}

func newOrderOutRow(o domain.Order) OrderOutRow {
	return OrderOutRow{
		OrderID:   o.OrderID,
		UserID:    o.UserID,
		Symbol:    toNullString(o.Symbol),
		OpenTime:  o.OpenTime,
		CloseTime: toNullTimestamp(o.CloseTime),
		ProfitUSD: toNullFloat64(o.ProfitUSD),
	}
}

func (r OrderOutRow) toDomain() domain.Order {
	return domain.Order{
		OrderID:   r.OrderID,
		UserID:    r.UserID,
		Symbol:    fromNullString(r.Symbol),
		OpenTime:  r.OpenTime,
		CloseTime: fromNullTimestamp(r.CloseTime),
		ProfitUSD: fromNullFloat64(r.ProfitUSD),
	}
}

func newRejectedRow(r domain.RejectedRecord) RejectedRow {
	raw := string(r.Raw)
	if raw == "" {
		raw = "{}"
	}
	return RejectedRow{
		Category: r.Category,
		Entity:   string(r.Entity),
		Kind:     string(r.Kind),
		Rule:     r.Rule,
		Reason:   r.Reason,
		Offset:   int64(r.Offset),
		Raw:      raw,
	}
}

func (r RejectedRow) toDomain() domain.RejectedRecord {
	return domain.RejectedRecord{
		Category: r.Category,
		Entity:   domain.Entity(r.Entity),
		Kind:     domain.RejectionKind(r.Kind),
		Rule:     r.Rule,
		Reason:   r.Reason,
		Offset:   int(r.Offset),
		Raw:      json.RawMessage(r.Raw),
	}
}

func (r RunRow) toDomain() domain.Run {
	run := domain.Run{
		RunID:      r.RunID,
		StartedAt:  r.StartedTS,
		FinishedAt: fromNullTimestamp(r.FinishedTS),
		Status:     domain.RunStatus(r.Status),
	}
	if r.ErrorMessage.Valid {
		run.ErrorMessage = r.ErrorMessage.StringVal
	}
	if r.Summary.Valid {
		run.Summary = json.RawMessage(r.Summary.StringVal)
	}
	return run
}

func fromNullInt64(v bigquery.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func fromNullString(v bigquery.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.StringVal
	return &s
}

func fromNullTimestamp(v bigquery.NullTimestamp) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Timestamp
	return &t
}

func fromNullFloat64(v bigquery.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func toNullString(v *string) bigquery.NullString {
	if v == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *v, Valid: true}
}

func toNullTimestamp(v *time.Time) bigquery.NullTimestamp {
	if v == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: *v, Valid: true}
}

func toNullFloat64(v *float64) bigquery.NullFloat64 {
	if v == nil {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: *v, Valid: true}
}
