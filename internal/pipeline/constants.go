package pipeline

// Categorical fields validated against the rule registry. These name fields,
// not allowed values: the values themselves only ever come from a RuleSet.
const (
	CategoryTrafficSource = "traffic_source"
	CategoryOperationType = "operation_type"
)

// Rejection tags for non-categorical failures.
const (
	TagMissingUserID        = "missing_user_id"
	TagOrphanOwner          = "orphan_owner"
	TagMissingOperationTime = "missing_operation_time"
	TagMissingAmount        = "missing_amount"
	TagNonFiniteAmount      = "non_finite_amount"
	TagNegativeAmount       = "negative_amount"
	TagMissingOpenTime      = "missing_open_time"
	TagOpenAfterClose       = "open_after_close"
)

// CategoricalTag is the audit store name of a categorical rule, e.g.
// "unknown_traffic_source".
func CategoricalTag(category string) string {
	return "unknown_" + category
}

// ValidatedCategories lists the rule categories one run loads.
func ValidatedCategories() []string {
	return []string{CategoryTrafficSource, CategoryOperationType}
}
