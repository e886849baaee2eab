package pipeline

import (
	"sort"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// Deduplicate collapses cleansed customer rows to one survivor per user_id.
//
// The survivor is the row with the latest registration time; a null
// registration time loses to any non-null one. Ties are broken by
// traffic_source, then country_code (both ascending, nulls last), then by
// the lowest staging offset, so the result does not depend on read order.
// Rows with a null user_id are skipped; callers reject them beforehand.
// Survivors are returned ordered by user_id.
func Deduplicate(rows []domain.RawCustomer) ([]domain.RawCustomer, int) {
	best := make(map[int64]domain.RawCustomer, len(rows))
	collapsed := 0
	for _, row := range rows {
		if row.UserID == nil {
			continue
		}
		id := *row.UserID
		current, seen := best[id]
		if !seen {
			best[id] = row
			continue
		}
		collapsed++
		if preferCustomer(row, current) {
			best[id] = row
		}
	}

	survivors := make([]domain.RawCustomer, 0, len(best))
	for _, row := range best {
		survivors = append(survivors, row)
	}
	sort.Slice(survivors, func(i, j int) bool {
		return *survivors[i].UserID < *survivors[j].UserID
	})
	return survivors, collapsed
}

// preferCustomer reports whether a should survive over b.
func preferCustomer(a, b domain.RawCustomer) bool {
	switch {
	case a.RegistrationTime == nil && b.RegistrationTime != nil:
		return false
	case a.RegistrationTime != nil && b.RegistrationTime == nil:
		return true
	case a.RegistrationTime != nil && !a.RegistrationTime.Equal(*b.RegistrationTime):
		return a.RegistrationTime.After(*b.RegistrationTime)
	}
	if c := compareNullsLast(a.TrafficSource, b.TrafficSource); c != 0 {
		return c < 0
	}
	if c := compareNullsLast(a.CountryCode, b.CountryCode); c != 0 {
		return c < 0
	}
	return a.Offset < b.Offset
}

func compareNullsLast(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
