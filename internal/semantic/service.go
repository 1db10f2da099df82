package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"usdmcore/internal/blob"
	"usdmcore/pkg/domain"
	"usdmcore/pkg/patch"
)

// Service exposes the semantic editing operations: reading the live
// document, accumulating drafts, and the publish transaction. All state
// lives on the object store; the revision check is the only concurrency
// control, so there is exactly one writer per protocol at a time by
// contract, not by lock.
type Service struct {
	store       blob.Store
	drafts      *DraftStore
	chain       *ChangeLog
	applier     *Applier
	immutable   patch.ImmutablePathSet
	docChecks   *domain.ValidatorSet
	schema      domain.Validator
	domainModel domain.Validator
	metrics     MetricsRecorder
	now         func() time.Time
	stamps      *tokenClock
}

// Config wires a Service. Store is required; everything else defaults.
type Config struct {
	Store       blob.Store
	Immutable   patch.ImmutablePathSet
	Referential domain.Validator   // defaults to SoAReferenceValidator
	DocChecks   []domain.Validator // additional document validators run with the referential check
	Schema      domain.Validator   // optional external schema validator
	DomainModel domain.Validator   // optional external domain-model validator
	Metrics     MetricsRecorder
	Now         func() time.Time
}

// NewService constructs a service over the supplied object store.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if cfg.Immutable == nil {
		cfg.Immutable = patch.DefaultImmutablePaths()
	}
	if cfg.Referential == nil {
		cfg.Referential = SoAReferenceValidator()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetricsRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	docChecks := domain.NewValidatorSet()
	docChecks.Register(cfg.Referential)
	for _, v := range cfg.DocChecks {
		docChecks.Register(v)
	}
	stamps := newTokenClock(cfg.Now)
	return &Service{
		store:       cfg.Store,
		drafts:      NewDraftStore(cfg.Store, stamps),
		chain:       NewChangeLog(cfg.Store),
		applier:     NewApplier(cfg.Immutable),
		immutable:   cfg.Immutable,
		docChecks:   docChecks,
		schema:      cfg.Schema,
		domainModel: cfg.DomainModel,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		stamps:      stamps,
	}, nil
}

// Store returns the underlying object store.
func (s *Service) Store() blob.Store { return s.store }

// Drafts returns the draft store.
func (s *Service) Drafts() *DraftStore { return s.drafts }

// ChangeLog returns the audit chain.
func (s *Service) ChangeLog() *ChangeLog { return s.chain }

// LiveDocumentKey returns the object key of a protocol's live document.
func (s *Service) LiveDocumentKey(protocolID string) string {
	return liveDocumentKey(protocolID)
}

// WriteLiveDocument installs raw JSON as the protocol's live document.
// Used by the initial import flow and tests; edits go through drafts.
func (s *Service) WriteLiveDocument(ctx context.Context, protocolID string, raw []byte) (string, error) {
	doc, err := DecodeDocument(raw)
	if err != nil {
		return "", err
	}
	rev, err := Revision(doc)
	if err != nil {
		return "", err
	}
	if _, err := s.store.Put(ctx, liveDocumentKey(protocolID), bytes.NewReader(raw), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return "", err
	}
	return rev, nil
}

// LiveDocument reads and decodes the protocol's live document, returning
// the tree, its raw bytes, and its revision hash.
func (s *Service) LiveDocument(ctx context.Context, protocolID string) (any, []byte, string, error) {
	raw, err := blob.ReadBytes(ctx, s.store, liveDocumentKey(protocolID))
	if err != nil {
		return nil, nil, "", err
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		return nil, nil, "", err
	}
	rev, err := Revision(doc)
	if err != nil {
		return nil, nil, "", err
	}
	return doc, raw, rev, nil
}

// Draft returns the protocol's current draft, or nil.
func (s *Service) Draft(ctx context.Context, protocolID string) (*domain.Draft, error) {
	return s.drafts.ReadLatest(ctx, protocolID)
}

// SaveDraft validates and merges newly produced operations into the
// protocol's draft. The revision check runs here too: a draft based on a
// stale document is rejected before it grows further.
func (s *Service) SaveDraft(ctx context.Context, req domain.SaveDraftRequest) (domain.SaveDraftResult, error) {
	started := s.now()
	res, err := s.saveDraft(ctx, req)
	s.metrics.Observe("save_draft", s.now().Sub(started), outcome(err))
	return res, err
}

func (s *Service) saveDraft(ctx context.Context, req domain.SaveDraftRequest) (domain.SaveDraftResult, error) {
	if req.ProtocolID == "" {
		return domain.SaveDraftResult{}, fmt.Errorf("protocol id required")
	}
	if vres := patch.ValidateOperations(req.Patch, s.immutable); !vres.Valid {
		return domain.SaveDraftResult{}, domain.NewPublishError(domain.CodePatchFailed, "invalid patch: %s", strings.Join(vres.Errors, "; "))
	}
	doc, _, revision, err := s.LiveDocument(ctx, req.ProtocolID)
	if errors.Is(err, blob.ErrNotFound) {
		return domain.SaveDraftResult{}, domain.NewPublishError(domain.CodeUnknownRevision, "no live document for protocol %s", req.ProtocolID)
	}
	if err != nil {
		return domain.SaveDraftResult{}, err
	}
	if req.USDMRevision == "" {
		return domain.SaveDraftResult{}, domain.NewPublishError(domain.CodeUnknownRevision, "save requires the document revision the edits were made against")
	}
	if req.USDMRevision != revision {
		return domain.SaveDraftResult{}, domain.NewPublishError(domain.CodeRevisionMismatch, "draft based on revision %s but live document is %s", shortHash(req.USDMRevision), shortHash(revision))
	}

	now := s.now().UTC()
	existing, err := s.drafts.ReadLatest(ctx, req.ProtocolID)
	if err != nil {
		return domain.SaveDraftResult{}, err
	}
	draft := domain.Draft{
		SchemaVersion: domain.DraftSchemaVersion,
		ID:            uuid.NewString(),
		ProtocolID:    req.ProtocolID,
		BaseRevision:  revision,
		Status:        domain.DraftStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
		UpdatedBy:     req.UpdatedBy,
		Operations:    req.Patch,
	}
	if existing != nil && !req.Replace {
		draft.ID = existing.ID
		draft.CreatedAt = existing.CreatedAt
		draft.Operations = append(append([]patch.Operation{}, existing.Operations...), req.Patch...)
	}
	if existing != nil {
		if _, err := s.drafts.Archive(ctx, req.ProtocolID); err != nil {
			return domain.SaveDraftResult{}, err
		}
	}
	if err := s.drafts.WriteLatest(ctx, req.ProtocolID, draft); err != nil {
		return domain.SaveDraftResult{}, err
	}

	result := domain.SaveDraftResult{Draft: draft}
	if dryErr := s.applier.DryRun(doc, draft.Operations); dryErr != nil {
		result.DryRunWarning = fmt.Sprintf("draft saved but would not currently apply: %v", dryErr)
	}
	return result, nil
}

// DraftCandidate applies the current draft to the live document and
// returns both serialized, for diff preview.
func (s *Service) DraftCandidate(ctx context.Context, protocolID string) (live, candidate []byte, err error) {
	doc, raw, _, err := s.LiveDocument(ctx, protocolID)
	if err != nil {
		return nil, nil, err
	}
	draft, err := s.drafts.ReadLatest(ctx, protocolID)
	if err != nil {
		return nil, nil, err
	}
	if draft == nil {
		return nil, nil, domain.NewPublishError(domain.CodeNoDraft, "no draft for protocol %s", protocolID)
	}
	patched, err := s.applier.Apply(doc, draft.Operations)
	if err != nil {
		return nil, nil, domain.NewPublishError(domain.CodePatchFailed, "%v", err)
	}
	out, err := EncodeDocument(patched)
	if err != nil {
		return nil, nil, err
	}
	return raw, out, nil
}

// History lists a protocol's change log entries.
func (s *Service) History(ctx context.Context, protocolID string) ([]domain.ChangeLogEntry, error) {
	return s.chain.Load(ctx, protocolID)
}

// VerifyChain recomputes a protocol's audit hash chain.
func (s *Service) VerifyChain(ctx context.Context, protocolID string) (domain.ChainReport, error) {
	started := s.now()
	report, err := s.chain.Verify(ctx, protocolID)
	s.metrics.Observe("verify_chain", s.now().Sub(started), outcome(err))
	return report, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var perr *domain.PublishError
	if errors.As(err, &perr) {
		return string(perr.Code)
	}
	return "error"
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
