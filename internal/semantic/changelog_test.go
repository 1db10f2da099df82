package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"usdmcore/internal/blob"
	"usdmcore/pkg/domain"
	"usdmcore/pkg/patch"
)

func appendTestEntries(t *testing.T, log *ChangeLog, protocolID string, n int) []domain.ChangeLogEntry {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		_, err := log.Append(ctx, protocolID, AppendInput{
			PublishedAt:  base.Add(time.Duration(i) * time.Hour),
			PublishedBy:  "reviewer",
			Reason:       "routine amendment",
			Patch:        []patch.Operation{{Op: patch.OpReplace, Path: "/study/name", Value: "v"}},
			DocumentHash: pseudoHash('a' + byte(i)),
			Validation:   &domain.ValidationSummary{SchemaValid: true, DomainValid: true},
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	entries, err := log.Load(ctx, protocolID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return entries
}

func brokenAtIndex(t *testing.T, report domain.ChainReport) int {
	t.Helper()
	if report.BrokenAt == nil {
		t.Fatalf("invalid report must carry a broken index: %+v", report)
	}
	return *report.BrokenAt
}

// pseudoHash builds a 64-char stand-in document hash.
func pseudoHash(b byte) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = b
	}
	return string(out)
}

func TestChangeLog_AppendChains(t *testing.T) {
	log := NewChangeLog(blob.NewMemory())
	entries := appendTestEntries(t, log, "proto-1", 3)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Version != 1 || entries[2].Version != 3 {
		t.Fatalf("versions must be sequential from 1: %+v", entries)
	}
	if entries[0].PreviousHash != "" {
		t.Fatalf("first entry must have empty previousHash")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PreviousHash != entries[i-1].Hash {
			t.Fatalf("entry %d not chained", i)
		}
	}
	report := VerifyIntegrity(entries)
	if !report.Valid {
		t.Fatalf("fresh chain must verify: %+v", report)
	}
}

func TestVerifyIntegrity_EmptyLog(t *testing.T) {
	if report := VerifyIntegrity(nil); !report.Valid {
		t.Fatalf("empty log must be valid: %+v", report)
	}
}

func TestVerifyIntegrity_TamperedField(t *testing.T) {
	log := NewChangeLog(blob.NewMemory())
	entries := appendTestEntries(t, log, "proto-1", 3)
	entries[1].Reason = "rewritten after the fact"
	report := VerifyIntegrity(entries)
	if report.Valid || brokenAtIndex(t, report) != 1 {
		t.Fatalf("expected break at index 1: %+v", report)
	}
	if report.Message != "hash mismatch / tampered" {
		t.Fatalf("unexpected message %q", report.Message)
	}
}

func TestVerifyIntegrity_BrokenAtZeroOnWire(t *testing.T) {
	log := NewChangeLog(blob.NewMemory())
	entries := appendTestEntries(t, log, "proto-1", 1)
	entries[0].Reason = "rewritten after the fact"
	report := VerifyIntegrity(entries)
	if report.Valid || brokenAtIndex(t, report) != 0 {
		t.Fatalf("expected break at index 0: %+v", report)
	}
	wire, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(wire), `"brokenAt":0`) {
		t.Fatalf("report must carry brokenAt on the wire: %s", wire)
	}
	wire, err = json.Marshal(domain.ChainReport{Valid: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(wire), "brokenAt") {
		t.Fatalf("valid report must omit brokenAt: %s", wire)
	}
}

func TestVerifyIntegrity_BrokenLinkage(t *testing.T) {
	log := NewChangeLog(blob.NewMemory())
	entries := appendTestEntries(t, log, "proto-1", 3)
	entries[2].PreviousHash = pseudoHash('f')
	report := VerifyIntegrity(entries)
	if report.Valid || brokenAtIndex(t, report) != 2 || report.Message != "previousHash mismatch" {
		t.Fatalf("expected linkage break at 2: %+v", report)
	}
}

func TestVerifyIntegrity_RemovedEntry(t *testing.T) {
	log := NewChangeLog(blob.NewMemory())
	entries := appendTestEntries(t, log, "proto-1", 3)
	cut := append([]domain.ChangeLogEntry{entries[0]}, entries[2])
	report := VerifyIntegrity(cut)
	if report.Valid || brokenAtIndex(t, report) != 1 {
		t.Fatalf("removal must surface at the gap: %+v", report)
	}
}

func TestChangeLog_Verify(t *testing.T) {
	store := blob.NewMemory()
	log := NewChangeLog(store)
	appendTestEntries(t, log, "proto-1", 2)
	report, err := log.Verify(context.Background(), "proto-1")
	if err != nil || !report.Valid {
		t.Fatalf("verify: %+v %v", report, err)
	}
	report, err = log.Verify(context.Background(), "proto-never-published")
	if err != nil || !report.Valid {
		t.Fatalf("missing log must verify clean: %+v %v", report, err)
	}
}

func TestChangedPaths_TopLevelDistinctAndCapped(t *testing.T) {
	ops := []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/name", Value: "a"},
		{Op: patch.OpReplace, Path: "/study/versions/@id:sv-1/objectives/@id:obj-2/text", Value: "b"},
		{Op: patch.OpAdd, Path: "/usdmVersion", Value: "3.0"},
	}
	if got := changedPaths(ops); !reflect.DeepEqual(got, []string{"/study", "/usdmVersion"}) {
		t.Fatalf("paths must collapse to distinct top-level segments: %v", got)
	}
	ops = nil
	for i := 0; i < changedPathsCap+5; i++ {
		ops = append(ops, patch.Operation{Op: patch.OpRemove, Path: fmt.Sprintf("/section%d", i)})
	}
	if got := changedPaths(ops); len(got) != changedPathsCap {
		t.Fatalf("list must cap at %d, got %d", changedPathsCap, len(got))
	}
}

func TestEntryHash_Stable(t *testing.T) {
	entry := domain.ChangeLogEntry{
		Version:      1,
		PublishedAt:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		PublishedBy:  "reviewer",
		Reason:       "initial",
		DocumentHash: pseudoHash('a'),
	}
	h1, err := EntryHash(entry)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	entry.Hash = h1
	h2, err := EntryHash(entry)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash must ignore the Hash field itself")
	}
	entry.Reason = "edited"
	h3, _ := EntryHash(entry)
	if h3 == h1 {
		t.Fatalf("hash must cover Reason")
	}
}
