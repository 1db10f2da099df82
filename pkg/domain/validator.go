package domain

import "context"

// Severity captures validator finding outcomes.
type Severity string

// Finding severities determine publish behavior: block aborts the gate,
// warn and log are recorded but do not abort.
const (
	// SeverityBlock aborts the publish gate.
	SeverityBlock Severity = "block"
	// SeverityWarn is recorded but allows the publish.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Finding reports a single validator issue.
type Finding struct {
	Validator string   `json:"validator"`
	Severity  Severity `json:"severity"`
	Path      string   `json:"path,omitempty"`
	Message   string   `json:"message"`
}

// Result aggregates findings from validator evaluation.
type Result struct {
	Findings []Finding `json:"findings,omitempty"`
}

// Merge appends findings from another result.
func (r *Result) Merge(other Result) {
	if len(other.Findings) == 0 {
		return
	}
	r.Findings = append(r.Findings, other.Findings...)
}

// HasBlocking returns true if the result contains blocking findings.
func (r Result) HasBlocking() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Blocking returns only the blocking findings.
func (r Result) Blocking() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityBlock {
			out = append(out, f)
		}
	}
	return out
}

// Validator inspects a candidate document and reports findings. The
// document is the opaque decoded JSON tree; validators must not mutate it.
type Validator interface {
	Name() string
	Validate(ctx context.Context, document any) (Result, error)
}

// ValidatorSet orchestrates validator evaluation.
type ValidatorSet struct {
	validators []Validator
}

// NewValidatorSet constructs an empty set.
func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{}
}

// Register appends a validator to the set.
func (s *ValidatorSet) Register(v Validator) {
	s.validators = append(s.validators, v)
}

// Evaluate executes all registered validators and aggregates their results.
func (s *ValidatorSet) Evaluate(ctx context.Context, document any) (Result, error) {
	var combined Result
	for _, v := range s.validators {
		res, err := v.Validate(ctx, document)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
