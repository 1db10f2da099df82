package semantic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"usdmcore/internal/blob"
	"usdmcore/pkg/domain"
)

// DraftStore persists the current uncommitted patch set per protocol on the
// object store. The latest draft is rewritten in place (atomic Put); every
// overwrite first copies the previous draft to an immutable, stamp-named
// archive key.
type DraftStore struct {
	store  blob.Store
	stamps *tokenClock
}

// NewDraftStore wires a draft store over the supplied object store.
func NewDraftStore(store blob.Store, stamps *tokenClock) *DraftStore {
	if stamps == nil {
		stamps = newTokenClock(time.Now)
	}
	return &DraftStore{store: store, stamps: stamps}
}

// ReadLatest returns the current draft, or nil when none exists. A corrupt
// draft file reads as absent; callers handle absence anyway.
func (d *DraftStore) ReadLatest(ctx context.Context, protocolID string) (*domain.Draft, error) {
	var draft domain.Draft
	err := blob.ReadJSON(ctx, d.store, draftLatestKey(protocolID), &draft)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// WriteLatest atomically replaces the current draft.
func (d *DraftStore) WriteLatest(ctx context.Context, protocolID string, draft domain.Draft) error {
	if err := blob.WriteJSON(ctx, d.store, draftLatestKey(protocolID), draft); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}

// Archive copies the existing draft to an immutable stamp-named key and
// returns that key, or "" when there was nothing to archive.
func (d *DraftStore) Archive(ctx context.Context, protocolID string) (string, error) {
	raw, err := blob.ReadBytes(ctx, d.store, draftLatestKey(protocolID))
	if errors.Is(err, blob.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	key := draftArchiveKey(protocolID, d.stamps.Next())
	if _, err := d.store.PutIfAbsent(ctx, key, bytes.NewReader(raw), blob.PutOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("archive draft: %w", err)
	}
	return key, nil
}

// DeleteLatest removes the current draft, reporting whether one existed.
// Called after a successful publish.
func (d *DraftStore) DeleteLatest(ctx context.Context, protocolID string) (bool, error) {
	return d.store.Delete(ctx, draftLatestKey(protocolID))
}
