package pipeline

import (
	"errors"
	"fmt"

	"github.com/dvloznov/trading-ingest/internal/domain"
)

// ErrBatchFailed is matched by every batch-fatal error returned by RunBatch.
var ErrBatchFailed = errors.New("batch failed")

// BatchError reports a batch-fatal failure. Nothing of the run was committed.
type BatchError struct {
	RunID string
	Step  string
	Err   error
}

func (e *BatchError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("batch failed at %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("batch %s failed at %s: %v", e.RunID, e.Step, e.Err)
}

// Unwrap exposes both ErrBatchFailed and the cause to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	return []error{ErrBatchFailed, e.Err}
}

// Rejection is the verdict for one excluded row. It is recovered locally and
// never aborts a batch.
type Rejection struct {
	Kind   domain.RejectionKind
	Tag    string
	Rule   string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s rejection %s: %s", r.Kind, r.Tag, r.Reason)
}

func categorical(category, value string) *Rejection {
	return &Rejection{
		Kind:   domain.RejectionCategorical,
		Tag:    CategoricalTag(category),
		Rule:   category,
		Reason: fmt.Sprintf("value %q is not an allowed %s", value, category),
	}
}

func domainConstraint(tag, rule, reason string) *Rejection {
	return &Rejection{Kind: domain.RejectionDomain, Tag: tag, Rule: rule, Reason: reason}
}

func orphan(userID *int64) *Rejection {
	reason := "user_id is null"
	if userID != nil {
		reason = fmt.Sprintf("user %d does not exist", *userID)
	}
	return &Rejection{
		Kind:   domain.RejectionReferential,
		Tag:    TagOrphanOwner,
		Rule:   "user_id references users",
		Reason: reason,
	}
}
