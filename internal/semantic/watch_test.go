package semantic

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForRevision(t *testing.T, w *DocumentWatcher, protocolID, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w.Revision(protocolID) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("revision never became %s, last %s", want, w.Revision(protocolID))
}

func TestDocumentWatcher_TracksRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol_usdm.json")
	if err := os.WriteFile(path, []byte(`{"study": {"name": "one"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	first, err := Revision(mustDecode(t, `{"study": {"name": "one"}}`))
	if err != nil {
		t.Fatalf("revision: %v", err)
	}

	w, err := NewDocumentWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Watch("proto-1", path); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if got := w.Revision("proto-1"); got != first {
		t.Fatalf("initial revision not captured: %s vs %s", got, first)
	}

	// atomic-rename style rewrite, as the fs store does it
	tmp := filepath.Join(dir, ".tmp-rewrite")
	if err := os.WriteFile(tmp, []byte(`{"study": {"name": "two"}}`), 0o644); err != nil {
		t.Fatalf("write tmp: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename: %v", err)
	}
	second, err := Revision(mustDecode(t, `{"study": {"name": "two"}}`))
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	waitForRevision(t, w, "proto-1", second)
}

func TestDocumentWatcher_UnknownProtocol(t *testing.T) {
	w, err := NewDocumentWatcher()
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer func() { _ = w.Close() }()
	if got := w.Revision("never-watched"); got != "" {
		t.Fatalf("expected empty revision, got %s", got)
	}
}

func mustDecode(t *testing.T, raw string) any {
	t.Helper()
	doc, err := DecodeDocument([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return doc
}
