// Package domain defines the persistent value types and validation
// primitives of the semantic editing core: drafts, change log entries,
// publish requests, and the validator contract gating every publish.
package domain

import (
	"time"

	"usdmcore/pkg/patch"
)

// DraftSchemaVersion is bumped when the stored draft shape changes.
const DraftSchemaVersion = 1

// DraftStatus tracks the draft lifecycle.
type DraftStatus string

// Draft lifecycle states.
const (
	// DraftStatusDraft marks an uncommitted, editable patch set.
	DraftStatusDraft DraftStatus = "draft"
	// DraftStatusPublished marks a draft snapshot whose patch was committed.
	DraftStatusPublished DraftStatus = "published"
)

// Draft is the per-protocol accumulation of uncommitted patch operations
// together with the document revision it was started against. BaseRevision
// must equal the live document's revision at both save and publish time.
type Draft struct {
	SchemaVersion int               `json:"schemaVersion"`
	ID            string            `json:"id"`
	ProtocolID    string            `json:"protocolId"`
	BaseRevision  string            `json:"baseRevision"`
	Status        DraftStatus       `json:"status"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	UpdatedBy     string            `json:"updatedBy"`
	Operations    []patch.Operation `json:"operations"`
}

// ValidationSummary embeds the validator verdicts recorded with a publish.
type ValidationSummary struct {
	SchemaValid       bool `json:"schemaValid"`
	DomainValid       bool `json:"domainValid"`
	ReferentialIssues int  `json:"referentialIssues"`
	ForcedPublish     bool `json:"forcedPublish"`
}

// ChangeLogEntry is one record of the append-only, hash-chained publish
// history. Hash covers every other field including PreviousHash, so the
// whole chain can be recomputed and checked from the log alone.
type ChangeLogEntry struct {
	Version        int                `json:"version"`
	PublishedAt    time.Time          `json:"publishedAt"`
	PublishedBy    string             `json:"publishedBy"`
	Reason         string             `json:"reason"`
	OperationCount int                `json:"operationCount"`
	ChangedPaths   []string           `json:"changedPaths,omitempty"`
	DocumentHash   string             `json:"documentHash"`
	PreviousHash   string             `json:"previousHash"`
	Hash           string             `json:"hash"`
	Validation     *ValidationSummary `json:"validation,omitempty"`
}

// ChainReport is the outcome of walking a change log's hash chain.
// BrokenAt is a pointer so that a chain broken at entry 0 still carries
// the index on the wire; it is nil exactly when the chain is valid.
type ChainReport struct {
	Valid    bool   `json:"valid"`
	BrokenAt *int   `json:"brokenAt,omitempty"`
	Message  string `json:"message,omitempty"`
}

// SaveDraftRequest carries one save-draft call. Replace swaps the stored
// operation list wholesale (import flow); otherwise new operations are
// appended to the existing draft.
type SaveDraftRequest struct {
	ProtocolID   string            `json:"protocolId"`
	USDMRevision string            `json:"usdmRevision"`
	UpdatedBy    string            `json:"updatedBy"`
	Replace      bool              `json:"replace,omitempty"`
	Patch        []patch.Operation `json:"patch"`
}

// SaveDraftResult reports a successful save plus a non-fatal dry-run
// warning when the accumulated patch would not currently apply.
type SaveDraftResult struct {
	Draft         Draft  `json:"draft"`
	DryRunWarning string `json:"dryRunWarning,omitempty"`
}

// PublishRequest carries one publish call. ForcePublish bypasses only the
// referential-integrity and external-validation gates; revision and patch
// validity are never overridable.
type PublishRequest struct {
	ProtocolID   string `json:"protocolId"`
	Reason       string `json:"reason"`
	PublishedBy  string `json:"publishedBy"`
	ForcePublish bool   `json:"forcePublish,omitempty"`
}

// PublishReceipt describes a committed publish.
type PublishReceipt struct {
	Success       bool              `json:"success"`
	PublishedAt   time.Time         `json:"publishedAt"`
	PublishedFile string            `json:"publishedFile"`
	Revision      string            `json:"revision"`
	Entry         ChangeLogEntry    `json:"entry"`
	Validation    ValidationSummary `json:"validation"`
	Warning       string            `json:"warning,omitempty"`
}
