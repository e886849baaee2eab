package pipeline

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

const timeLayout = time.RFC3339Nano

// AuditSink collects rejections during a run. Categorical rejections are
// always recorded; referential and domain ones only when auditAll is set.
// Every rejection is counted either way. Safe for concurrent use.
type AuditSink struct {
	auditAll bool

	mu      sync.Mutex
	records []domain.RejectedRecord
	counts  map[string]int
}

// NewAuditSink creates an empty sink.
func NewAuditSink(auditAll bool) *AuditSink {
	return &AuditSink{auditAll: auditAll, counts: make(map[string]int)}
}

// Record registers a rejection of a raw staging row. raw must be the row as
// received, before cleansing.
func (s *AuditSink) Record(entity domain.Entity, raw any, offset int, rej *Rejection) {
	audited := rej.Kind == domain.RejectionCategorical || s.auditAll

	var rec domain.RejectedRecord
	if audited {
		rec = domain.RejectedRecord{
			Category: rej.Tag,
			Entity:   entity,
			Kind:     rej.Kind,
			Rule:     rej.Rule,
			Reason:   rej.Reason,
			Offset:   offset,
			Raw:      EncodeRaw(raw),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[rej.Tag]++
	if audited {
		s.records = append(s.records, rec)
	}
}

// Records returns the audited rows ordered by category, entity and offset.
func (s *AuditSink) Records() []domain.RejectedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RejectedRecord, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Entity != out[j].Entity {
			return out[i].Entity < out[j].Entity
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

// Counts returns the number of rejections per tag, audited or not.
func (s *AuditSink) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// EncodeRaw renders a staging row as a JSON object. Non-finite floats and
// out-of-range timestamps are kept as strings so encoding never fails.
func EncodeRaw(raw any) json.RawMessage {
	var fields map[string]any
	switch r := raw.(type) {
	case domain.RawCustomer:
		fields = map[string]any{
			"user_id":           rawInt(r.UserID),
			"country_code":      rawString(r.CountryCode),
			"registration_time": rawTime(r.RegistrationTime),
			"traffic_source":    rawString(r.TrafficSource),
		}
	case domain.RawBalance:
		fields = map[string]any{
			"user_id":              rawInt(r.UserID),
			"operation_time":       rawTime(r.OperationTime),
			"operation_type":       rawString(r.OperationType),
			"operation_amount_usd": rawFloat(r.OperationAmountUSD),
		}
	case domain.RawOrder:
		fields = map[string]any{
			"user_id":    rawInt(r.UserID),
			"symbol":     rawString(r.Symbol),
			"open_time":  rawTime(r.OpenTime),
			"close_time": rawTime(r.CloseTime),
			"profit_usd": rawFloat(r.ProfitUSD),
		}
	default:
		if b, err := json.Marshal(raw); err == nil {
			return b
		}
		return json.RawMessage(`{}`)
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func rawInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func rawString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func rawTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(timeLayout)
}

func rawFloat(v *float64) any {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return strconv.FormatFloat(*v, 'g', -1, 64)
	}
	return *v
}
