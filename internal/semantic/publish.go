package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"usdmcore/internal/blob"
	"usdmcore/pkg/domain"
)

// Publish runs the gated publish transaction for a protocol's draft.
//
// Gates run strictly in order: reason, draft-exists, revision,
// referential-integrity, patch-application, external validation, commit.
// Every gate before commit is read-and-check only; nothing durable changes
// until all mandatory gates pass. ForcePublish weakens only the
// referential-integrity and external-validation gates; the revision gate
// and patch validity are never overridable.
func (s *Service) Publish(ctx context.Context, req domain.PublishRequest) (domain.PublishReceipt, error) {
	started := s.now()
	receipt, err := s.publish(ctx, req)
	s.metrics.Observe("publish", s.now().Sub(started), outcome(err))
	return receipt, err
}

func (s *Service) publish(ctx context.Context, req domain.PublishRequest) (domain.PublishReceipt, error) {
	// Gate 1: reason.
	if strings.TrimSpace(req.Reason) == "" && !req.ForcePublish {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeReasonRequired, "a publish reason is required")
	}

	// Gate 2: draft exists and carries a known base revision.
	draft, err := s.drafts.ReadLatest(ctx, req.ProtocolID)
	if err != nil {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeNoDraft, "read draft: %v", err)
	}
	if draft == nil {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeNoDraft, "no draft for protocol %s", req.ProtocolID)
	}
	if draft.BaseRevision == "" {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeUnknownRevision, "draft has no base revision")
	}

	// Gate 3: optimistic concurrency against the live document.
	liveDoc, liveRaw, liveRevision, err := s.LiveDocument(ctx, req.ProtocolID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeRevisionMismatch, "no live document for protocol %s", req.ProtocolID)
		}
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeRevisionMismatch, "read live document: %v", err)
	}
	if draft.BaseRevision != liveRevision {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeRevisionMismatch,
			"draft based on revision %s but live document is %s; re-fetch and retry", shortHash(draft.BaseRevision), shortHash(liveRevision))
	}

	// Gate 4: referential integrity of the current live document, plus any
	// extra registered document checks, aggregated over the whole set.
	refResult, err := s.docChecks.Evaluate(ctx, liveDoc)
	if err != nil {
		// fail closed
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeReferentialIntegrity, "referential check failed: %v", err)
	}
	refIssues := refResult.Blocking()
	if len(refIssues) > 0 && !req.ForcePublish {
		perr := domain.NewPublishError(domain.CodeReferentialIntegrity, "%d referential integrity issue(s)", len(refIssues))
		perr.Findings = refIssues
		return domain.PublishReceipt{}, perr
	}

	// Gate 5: apply the patch to a copy. Never overridable.
	candidate, err := s.applier.Apply(liveDoc, draft.Operations)
	if err != nil {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodePatchFailed, "%v", err)
	}

	// Gate 6: external validators against the candidate document.
	summary := domain.ValidationSummary{SchemaValid: true, DomainValid: true, ReferentialIssues: len(refIssues), ForcedPublish: req.ForcePublish}
	var failures []string
	summary.SchemaValid, failures = s.runExternal(ctx, s.schema, candidate, failures)
	summary.DomainValid, failures = s.runExternal(ctx, s.domainModel, candidate, failures)
	if (!summary.SchemaValid || !summary.DomainValid) && !req.ForcePublish {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodeValidationFailed, "%s", strings.Join(failures, "; "))
	}

	// Commit. Sub-steps run in fixed order; a crash mid-commit leaves at
	// worst "document committed but draft/audit not yet updated", which is
	// recoverable, never a deleted draft without a new document.
	publishedAt := s.now().UTC()
	stamp := s.stamps.Next()
	candidateRaw, err := EncodeDocument(candidate)
	if err != nil {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodePatchFailed, "encode candidate: %v", err)
	}
	candidateRevision, err := Revision(candidate)
	if err != nil {
		return domain.PublishReceipt{}, domain.NewPublishError(domain.CodePatchFailed, "hash candidate: %v", err)
	}

	jsonOpts := blob.PutOptions{ContentType: "application/json"}
	if _, err := s.store.PutIfAbsent(ctx, historyKey(req.ProtocolID, stamp), bytes.NewReader(liveRaw), jsonOpts); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("archive live document: %w", err)
	}
	if _, err := s.store.Put(ctx, liveDocumentKey(req.ProtocolID), bytes.NewReader(candidateRaw), jsonOpts); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("write live document: %w", err)
	}
	publishedFile := publishedSnapshotKey(req.ProtocolID, stamp)
	if _, err := s.store.PutIfAbsent(ctx, publishedFile, bytes.NewReader(candidateRaw), jsonOpts); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("write published snapshot: %w", err)
	}
	if _, err := s.store.Put(ctx, publishedLatestKey(req.ProtocolID), bytes.NewReader(candidateRaw), jsonOpts); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("write published latest: %w", err)
	}

	// The archived draft snapshot records the published status.
	draft.Status = domain.DraftStatusPublished
	draft.UpdatedAt = publishedAt
	if err := s.drafts.WriteLatest(ctx, req.ProtocolID, *draft); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("finalize draft: %w", err)
	}
	if _, err := s.drafts.Archive(ctx, req.ProtocolID); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("archive draft: %w", err)
	}
	if _, err := s.drafts.DeleteLatest(ctx, req.ProtocolID); err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("delete draft: %w", err)
	}

	entry, err := s.chain.Append(ctx, req.ProtocolID, AppendInput{
		PublishedAt:  publishedAt,
		PublishedBy:  req.PublishedBy,
		Reason:       req.Reason,
		Patch:        draft.Operations,
		DocumentHash: candidateRevision,
		Validation:   &summary,
	})
	if err != nil {
		return domain.PublishReceipt{}, fmt.Errorf("append change log: %w", err)
	}

	receipt := domain.PublishReceipt{
		Success:       true,
		PublishedAt:   publishedAt,
		PublishedFile: publishedFile,
		Revision:      candidateRevision,
		Entry:         entry,
		Validation:    summary,
	}
	if req.ForcePublish && (len(refIssues) > 0 || !summary.SchemaValid || !summary.DomainValid) {
		parts := make([]string, 0, 3)
		if len(refIssues) > 0 {
			parts = append(parts, fmt.Sprintf("%d referential integrity issue(s)", len(refIssues)))
		}
		parts = append(parts, failures...)
		receipt.Warning = fmt.Sprintf("published with forcePublish despite: %s", strings.Join(parts, "; "))
	}
	return receipt, nil
}

// runExternal evaluates one optional external validator; nil validators
// pass. Validator errors fail closed as a failed validation.
func (s *Service) runExternal(ctx context.Context, v domain.Validator, candidate any, failures []string) (bool, []string) {
	if v == nil {
		return true, failures
	}
	res, err := v.Validate(ctx, candidate)
	if err != nil {
		return false, append(failures, fmt.Sprintf("%s: %v", v.Name(), err))
	}
	if res.HasBlocking() {
		for _, f := range res.Blocking() {
			failures = append(failures, fmt.Sprintf("%s: %s", f.Validator, f.Message))
		}
		return false, failures
	}
	return true, failures
}
