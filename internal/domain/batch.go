package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity names the kind of row a count or rejection refers to.
type Entity string

const (
	EntityUser    Entity = "user"
	EntityBalance Entity = "balance"
	EntityOrder   Entity = "order"
)

// RejectionKind classifies why a row was excluded from the output.
type RejectionKind string

const (
	// RejectionCategorical: a categorical value is not in the live rule set. Always audited.
	RejectionCategorical RejectionKind = "categorical"
	// RejectionReferential: a dependent row has no validated owning user.
	RejectionReferential RejectionKind = "referential"
	// RejectionDomain: a business rule failed (null timestamp, negative amount, open after close).
	RejectionDomain RejectionKind = "domain"
)

// RejectedRecord is one row of an audit store. Raw holds the staging row
// verbatim (before cleansing) as JSON.
type RejectedRecord struct {
	Category string          `json:"category" db:"category"`
	Entity   Entity          `json:"entity" db:"entity"`
	Kind     RejectionKind   `json:"kind" db:"kind"`
	Rule     string          `json:"violated_rule" db:"violated_rule"`
	Reason   string          `json:"reason" db:"reason"`
	Offset   int             `json:"row_offset" db:"row_offset"`
	Raw      json.RawMessage `json:"raw" db:"raw"`
}

// Batch is the fully computed unit of work of one run. Nothing in it is
// visible to readers until a store commits it as a whole.
type Batch struct {
	RunID    string
	Users    []User
	Balance  []BalanceEntry
	Orders   []Order
	Rejected []RejectedRecord
}

// EntityCounts are the per-entity totals of a run.
type EntityCounts struct {
	Staged     int `json:"staged"`
	Duplicates int `json:"duplicates"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`
}

// Summary is what a successful run reports.
type Summary struct {
	RunID      string                  `json:"run_id"`
	Entities   map[Entity]EntityCounts `json:"entities"`
	Rejections map[string]int          `json:"rejections"`
	Audited    int                     `json:"audited"`
}

// NewSummary returns a Summary with all maps initialised.
func NewSummary(runID string) *Summary {
	return &Summary{
		RunID: runID,
		Entities: map[Entity]EntityCounts{
			EntityUser:    {},
			EntityBalance: {},
			EntityOrder:   {},
		},
		Rejections: make(map[string]int),
	}
}

// RunStatus is the lifecycle state of a pipeline run row.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// Run is the bookkeeping record of one batch run.
type Run struct {
	RunID        string          `json:"run_id" db:"run_id"`
	StartedAt    time.Time       `json:"started_at" db:"started_ts"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty" db:"finished_ts"`
	Status       RunStatus       `json:"status" db:"status"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	Summary      json.RawMessage `json:"summary,omitempty" db:"summary"`
}

// Staging is the full raw input of one run, in staging read order.
type Staging struct {
	Customers []RawCustomer `json:"customers"`
	Balance   []RawBalance  `json:"customer_balance"`
	Orders    []RawOrder    `json:"customer_orders"`
}

// EncodeSummary renders a summary for storage on the run row.
func EncodeSummary(s *Summary) (json.RawMessage, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("EncodeSummary: %w", err)
	}
	return b, nil
}
