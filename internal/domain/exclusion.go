package domain

// ExclusionRule defines an operator-configured false-positive rule.
// The CEL expression is evaluated per account against its aggregate stats;
// a true result removes the account from ring membership, the same way the
// built-in merchant and payroll classifiers do.
//
// Available variables: account (string), in_degree, out_degree, tx_count
// (int), total_in, total_out (double).
type ExclusionRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression returning bool.
	Expression string `json:"expression"`

	// Label is recorded as the exclusion reason (e.g. "exchange", "treasury").
	Label string `json:"label"`

	// Whether the rule is active.
	Enabled bool `json:"enabled"`
}

// Built-in exclusion labels produced by the classifier.
const (
	ExclusionMerchant = "merchant"
	ExclusionPayroll  = "payroll"
)
