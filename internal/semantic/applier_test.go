package semantic

import (
	"reflect"
	"strings"
	"testing"

	"usdmcore/pkg/patch"
)

func TestApplier_ReplaceByID(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, []patch.Operation{{
		Op:    patch.OpReplace,
		Path:  "/study/versions/@id:sv-1/objectives/@id:obj-2/text",
		Value: "updated",
	}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := getValue(out, "/study/versions/0/objectives/1/text")
	if err != nil || got != "updated" {
		t.Fatalf("unexpected value %v %v", got, err)
	}
}

func TestApplier_InputNeverMutated(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	before, err := Revision(doc)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	ops := []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/0/text", Value: "changed"},
		{Op: patch.OpRemove, Path: "/study/versions/0/objectives/2"},
		{Op: patch.OpAdd, Path: "/study/versions/0/objectives/-", Value: map[string]any{"id": "obj-4"}},
	}
	if _, err := applier.Apply(doc, ops); err != nil {
		t.Fatalf("apply: %v", err)
	}
	after, err := Revision(doc)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if before != after {
		t.Fatalf("input document was mutated")
	}
}

func TestApplier_AllOrNothing(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	before, _ := Revision(doc)
	ops := []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/0/text", Value: "landed"},
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/99/text", Value: "boom"},
	}
	out, err := applier.Apply(doc, ops)
	if err == nil {
		t.Fatalf("expected failure")
	}
	if out != nil {
		t.Fatalf("failed apply must not return a document")
	}
	after, _ := Revision(doc)
	if before != after {
		t.Fatalf("failed apply mutated the input")
	}
}

func TestApplier_OrderMatters(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/0/text", Value: "first write"},
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/0/text", Value: "second write"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ := getValue(out, "/study/versions/0/objectives/0/text")
	if got != "second write" {
		t.Fatalf("later op must win, got %v", got)
	}
}

func TestApplier_ImmutableRejected(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	_, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/id", Value: "other"},
	})
	if err == nil || !strings.Contains(err.Error(), "immutable") {
		t.Fatalf("expected immutable rejection, got %v", err)
	}
}

func TestApplier_AddInsertAndAppend(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpAdd, Path: "/study/versions/0/objectives/1", Value: map[string]any{"id": "obj-new", "text": "inserted"}},
		{Op: patch.OpAdd, Path: "/study/versions/0/objectives/-", Value: map[string]any{"id": "obj-tail", "text": "appended"}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	arr, _ := getValue(out, "/study/versions/0/objectives")
	items, ok := arr.([]any)
	if !ok || len(items) != 5 {
		t.Fatalf("unexpected array %v", arr)
	}
	if id, _ := entityID(items[1]); id != "obj-new" {
		t.Fatalf("insert position wrong: %v", items[1])
	}
	if id, _ := entityID(items[4]); id != "obj-tail" {
		t.Fatalf("append position wrong: %v", items[4])
	}
}

func TestApplier_RemoveShiftsIndices(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpRemove, Path: "/study/versions/0/objectives/0"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := getValue(out, "/study/versions/0/objectives/0/id")
	if err != nil || got != "obj-2" {
		t.Fatalf("expected obj-2 at index 0: %v %v", got, err)
	}
}

func TestApplier_MoveAndCopy(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpMove, Path: "/study/versions/0/objectives/0", From: "/study/versions/0/objectives/@id:obj-3"},
		{Op: patch.OpCopy, Path: "/study/primary", From: "/study/versions/0/objectives/0/text"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := getValue(out, "/study/versions/0/objectives/0/id"); got != "obj-3" {
		t.Fatalf("move failed: %v", got)
	}
	if got, _ := getValue(out, "/study/primary"); got != "third" {
		t.Fatalf("copy failed: %v", got)
	}
}

func TestApplier_TestOp(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	if _, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpTest, Path: "/study/versions/0/objectives/0/text", Value: "first"},
	}); err != nil {
		t.Fatalf("matching test op must pass: %v", err)
	}
	if _, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpTest, Path: "/study/versions/0/objectives/0/text", Value: "wrong"},
	}); err == nil {
		t.Fatalf("mismatched test op must fail")
	}
}

func TestApplier_ReplaceMissingKeyFails(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	if _, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/missing", Value: "x"},
	}); err == nil {
		t.Fatalf("replace must require existence")
	}
}

func TestApplier_EmptyBatchIsNoOp(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !reflect.DeepEqual(out, doc) {
		t.Fatalf("empty batch changed the document")
	}
}

func TestApplier_ResolutionAgainstSnapshot(t *testing.T) {
	// Symbolic paths resolve against the pre-patch snapshot, so a batch
	// that removes an element can still address later elements by id.
	applier := NewApplier(nil)
	doc := testDoc(t)
	out, err := applier.Apply(doc, []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/@id:obj-1/text", Value: "a"},
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/@id:obj-3/text", Value: "c"},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got, _ := getValue(out, "/study/versions/0/objectives/2/text"); got != "c" {
		t.Fatalf("snapshot resolution failed: %v", got)
	}
}

func TestDryRun(t *testing.T) {
	applier := NewApplier(nil)
	doc := testDoc(t)
	if err := applier.DryRun(doc, []patch.Operation{
		{Op: patch.OpRemove, Path: "/study/versions/0/objectives/0"},
	}); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if err := applier.DryRun(doc, []patch.Operation{
		{Op: patch.OpRemove, Path: "/study/versions/0/objectives/9"},
	}); err == nil {
		t.Fatalf("dry run must surface failures")
	}
}
