package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"usdmcore/internal/blob"
	"usdmcore/pkg/domain"
	"usdmcore/pkg/patch"
)

// changedPathsCap bounds the distinct changed-path list stored per entry.
const changedPathsCap = 20

// ChangeLog is the append-only, per-protocol sequence of publish records.
// Each entry's hash covers every other field including the previous entry's
// hash, so tampering or reordering anywhere in the history is detectable by
// recomputation alone. Entries are never updated or deleted; append
// rewrites the whole log file atomically.
type ChangeLog struct {
	store blob.Store
}

// NewChangeLog wires the change log over the supplied object store.
func NewChangeLog(store blob.Store) *ChangeLog {
	return &ChangeLog{store: store}
}

type changeLogFile struct {
	Entries []domain.ChangeLogEntry `json:"entries"`
}

// AppendInput carries the publish facts bound into a new entry.
type AppendInput struct {
	PublishedAt  time.Time
	PublishedBy  string
	Reason       string
	Patch        []patch.Operation
	DocumentHash string
	Validation   *domain.ValidationSummary
}

// Load returns the protocol's entries in order; a missing log is empty.
func (c *ChangeLog) Load(ctx context.Context, protocolID string) ([]domain.ChangeLogEntry, error) {
	var file changeLogFile
	err := blob.ReadJSON(ctx, c.store, changeLogKey(protocolID), &file)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return file.Entries, nil
}

// Append builds the next entry, chains it to the last one, and atomically
// rewrites the log.
func (c *ChangeLog) Append(ctx context.Context, protocolID string, in AppendInput) (domain.ChangeLogEntry, error) {
	entries, err := c.Load(ctx, protocolID)
	if err != nil {
		return domain.ChangeLogEntry{}, err
	}
	previousHash := ""
	if len(entries) > 0 {
		previousHash = entries[len(entries)-1].Hash
	}
	entry := domain.ChangeLogEntry{
		Version:        len(entries) + 1,
		PublishedAt:    in.PublishedAt.UTC(),
		PublishedBy:    in.PublishedBy,
		Reason:         in.Reason,
		OperationCount: len(in.Patch),
		ChangedPaths:   changedPaths(in.Patch),
		DocumentHash:   in.DocumentHash,
		PreviousHash:   previousHash,
		Validation:     in.Validation,
	}
	entry.Hash, err = EntryHash(entry)
	if err != nil {
		return domain.ChangeLogEntry{}, err
	}
	entries = append(entries, entry)
	if err := blob.WriteJSON(ctx, c.store, changeLogKey(protocolID), changeLogFile{Entries: entries}); err != nil {
		return domain.ChangeLogEntry{}, fmt.Errorf("write change log: %w", err)
	}
	return entry, nil
}

// EntryHash computes the sha256 over the canonical serialization of every
// field except Hash itself. VerifyIntegrity recomputes exactly this.
func EntryHash(entry domain.ChangeLogEntry) (string, error) {
	entry.Hash = ""
	b, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyIntegrity walks entries in order checking the previousHash linkage
// and each entry's recomputed self-hash. The first failing index is
// reported; an empty log is trivially valid.
func VerifyIntegrity(entries []domain.ChangeLogEntry) domain.ChainReport {
	for i, entry := range entries {
		wantPrev := ""
		if i > 0 {
			wantPrev = entries[i-1].Hash
		}
		if entry.PreviousHash != wantPrev {
			return brokenChain(i, "previousHash mismatch")
		}
		recomputed, err := EntryHash(entry)
		if err != nil {
			return brokenChain(i, fmt.Sprintf("hash recompute failed: %v", err))
		}
		if recomputed != entry.Hash {
			return brokenChain(i, "hash mismatch / tampered")
		}
	}
	return domain.ChainReport{Valid: true}
}

func brokenChain(index int, message string) domain.ChainReport {
	return domain.ChainReport{Valid: false, BrokenAt: &index, Message: message}
}

// Protocols lists every protocol id carrying a change log on the store.
func (c *ChangeLog) Protocols(ctx context.Context) ([]string, error) {
	infos, err := c.store.List(ctx, "semantic/")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, info := range infos {
		parts := strings.Split(info.Key, "/")
		if len(parts) == 3 && parts[2] == "changelog.json" {
			out = append(out, parts[1])
		}
	}
	return out, nil
}

// Verify loads a protocol's log and checks its chain.
func (c *ChangeLog) Verify(ctx context.Context, protocolID string) (domain.ChainReport, error) {
	entries, err := c.Load(ctx, protocolID)
	if err != nil {
		return domain.ChainReport{}, err
	}
	return VerifyIntegrity(entries), nil
}

// changedPaths returns the distinct top-level paths touched by the patch,
// in first-seen order, capped so one sweeping import cannot bloat the log.
// Entries record which regions of the document changed, not every leaf.
func changedPaths(ops []patch.Operation) []string {
	seen := make(map[string]struct{}, len(ops))
	var out []string
	for _, op := range ops {
		top := topLevelPath(op.Path)
		if _, dup := seen[top]; dup {
			continue
		}
		seen[top] = struct{}{}
		out = append(out, top)
		if len(out) == changedPathsCap {
			break
		}
	}
	return out
}

// topLevelPath truncates a pointer to its first segment. Paths that fail
// to split were never validated and are kept whole.
func topLevelPath(path string) string {
	segments, err := patch.SplitPointer(path)
	if err != nil || len(segments) == 0 {
		return path
	}
	return patch.JoinPointer(segments[:1])
}
