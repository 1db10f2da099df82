package domain

import "fmt"

// PublishErrorCode is the machine-readable reason a publish (or draft save)
// was rejected. Every gate in the pipeline has a distinct code so callers
// can render a specific, actionable message.
type PublishErrorCode string

// Pipeline error codes, in gate order.
const (
	// CodeReasonRequired rejects a publish with a blank reason and no override.
	CodeReasonRequired PublishErrorCode = "reason_required"
	// CodeNoDraft rejects a publish when no draft exists for the protocol.
	CodeNoDraft PublishErrorCode = "no_draft"
	// CodeUnknownRevision rejects a draft whose base revision was never computed.
	CodeUnknownRevision PublishErrorCode = "unknown_revision"
	// CodeRevisionMismatch is the optimistic-concurrency conflict.
	CodeRevisionMismatch PublishErrorCode = "usdm_revision_mismatch"
	// CodeReferentialIntegrity reports cross-reference issues in the document.
	CodeReferentialIntegrity PublishErrorCode = "referential_integrity"
	// CodePatchFailed reports the patch could not be applied.
	CodePatchFailed PublishErrorCode = "patch_failed"
	// CodeValidationFailed reports external schema/domain validation failure.
	CodeValidationFailed PublishErrorCode = "validation_failed"
)

// PublishError is the typed failure returned by the pipeline gates. The
// gates fail closed: any unexpected error during a gate is wrapped as that
// gate's code and nothing durable changes.
type PublishError struct {
	Code     PublishErrorCode `json:"error"`
	Message  string           `json:"message"`
	Findings []Finding        `json:"findings,omitempty"`
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the code to its HTTP-equivalent semantics.
func (e *PublishError) HTTPStatus() int {
	switch e.Code {
	case CodeReasonRequired:
		return 400
	case CodeNoDraft:
		return 404
	case CodeUnknownRevision, CodeRevisionMismatch:
		return 409
	case CodeReferentialIntegrity, CodePatchFailed, CodeValidationFailed:
		return 422
	default:
		return 500
	}
}

// NewPublishError builds a typed failure.
func NewPublishError(code PublishErrorCode, format string, args ...any) *PublishError {
	return &PublishError{Code: code, Message: fmt.Sprintf(format, args...)}
}
