package semantic

import (
	"errors"
	"strings"
	"testing"

	"usdmcore/pkg/patch"
)

func testDoc(t *testing.T) any {
	t.Helper()
	doc, err := DecodeDocument([]byte(`{
		"study": {
			"id": "study-1",
			"versions": [
				{"id": "sv-1", "objectives": [
					{"id": "obj-1", "text": "first"},
					{"id": "obj-2", "text": "second"},
					{"id": "obj-3", "text": "third"}
				]}
			]
		}
	}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}

func TestResolve_IDSegment(t *testing.T) {
	doc := testDoc(t)
	got, err := Resolve(doc, "/study/versions/@id:sv-1/objectives/@id:obj-2/text")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "/study/versions/0/objectives/1/text" {
		t.Fatalf("unexpected resolution %q", got)
	}
}

func TestResolve_IDNotFound(t *testing.T) {
	doc := testDoc(t)
	_, err := Resolve(doc, "/study/versions/0/objectives/@id:ghost/text")
	if err == nil {
		t.Fatalf("expected resolution error")
	}
	var rerr *ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("unexpected error type %T", err)
	}
	if rerr.Kind != ResolutionIDNotFound || rerr.ID != "ghost" {
		t.Fatalf("unexpected error %+v", rerr)
	}
	if !strings.Contains(err.Error(), `"ghost"`) {
		t.Fatalf("error message must name the missing id: %v", err)
	}
}

func TestResolve_NonArray(t *testing.T) {
	doc := testDoc(t)
	_, err := Resolve(doc, "/study/@id:sv-1/name")
	var rerr *ResolutionError
	if !errors.As(err, &rerr) || rerr.Kind != ResolutionNonArray {
		t.Fatalf("expected non-array error, got %v", err)
	}
}

func TestResolve_PlainPathUnchanged(t *testing.T) {
	doc := testDoc(t)
	got, err := Resolve(doc, "/study/versions/0/objectives/2/text")
	if err != nil || got != "/study/versions/0/objectives/2/text" {
		t.Fatalf("plain path must resolve to itself: %q %v", got, err)
	}
	// the plain-path shortcut still validates the pointer
	if _, err := Resolve(doc, "study/name"); err == nil {
		t.Fatalf("unrooted plain path must fail")
	}
}

func TestResolve_DuplicateIDFirstWins(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"items": [
		{"id": "dup", "n": 1},
		{"id": "dup", "n": 2}
	]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := Resolve(doc, "/items/@id:dup/n")
	if err != nil || got != "/items/0/n" {
		t.Fatalf("first match must win: %q %v", got, err)
	}
}

func TestResolve_NumericEntityID(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"items": [{"id": 7, "n": 1}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := Resolve(doc, "/items/@id:7/n")
	if err != nil || got != "/items/0/n" {
		t.Fatalf("numeric id must match: %q %v", got, err)
	}
}

func TestResolveAll_CollectsEveryError(t *testing.T) {
	doc := testDoc(t)
	ops := []patch.Operation{
		{Op: patch.OpReplace, Path: "/study/versions/0/objectives/@id:missing-a/text", Value: "x"},
		{Op: patch.OpCopy, Path: "/study/name", From: "/study/versions/0/objectives/@id:missing-b/text"},
	}
	resolved, errs := ResolveAll(doc, ops)
	if resolved != nil {
		t.Fatalf("failed resolution must not yield a batch")
	}
	if len(errs) != 2 {
		t.Fatalf("expected both failures reported, got %v", errs)
	}
}

func TestResolveAll_ResolvesFromPaths(t *testing.T) {
	doc := testDoc(t)
	ops := []patch.Operation{{
		Op:   patch.OpMove,
		Path: "/study/versions/@id:sv-1/objectives/0",
		From: "/study/versions/@id:sv-1/objectives/@id:obj-3",
	}}
	resolved, errs := ResolveAll(doc, ops)
	if len(errs) != 0 {
		t.Fatalf("resolve: %v", errs)
	}
	if resolved[0].Path != "/study/versions/0/objectives/0" || resolved[0].From != "/study/versions/0/objectives/2" {
		t.Fatalf("unexpected resolution %+v", resolved[0])
	}
}
