package semantic

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DocumentWatcher follows live document files on disk and keeps their
// revisions current, so the API layer can tell editors about out-of-band
// changes before they discover them at publish time. Only meaningful with
// the fs object-store driver; other drivers rely on the revision gate
// alone.
type DocumentWatcher struct {
	watcher *fsnotify.Watcher
	mu      sync.RWMutex
	// path -> protocol id
	paths map[string]string
	// protocol id -> last observed revision
	revisions map[string]string
	done      chan struct{}
}

// NewDocumentWatcher starts an empty watcher; add documents with Watch.
func NewDocumentWatcher() (*DocumentWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	dw := &DocumentWatcher{
		watcher:   w,
		paths:     make(map[string]string),
		revisions: make(map[string]string),
		done:      make(chan struct{}),
	}
	go dw.run()
	return dw, nil
}

// Watch registers a protocol's live document path. The containing
// directory is watched so rename-style atomic writes are observed.
func (dw *DocumentWatcher) Watch(protocolID, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dw.mu.Lock()
	dw.paths[abs] = protocolID
	dw.mu.Unlock()
	dw.refresh(abs, protocolID)
	return dw.watcher.Add(filepath.Dir(abs))
}

// Revision returns the last observed revision for a protocol, or "".
func (dw *DocumentWatcher) Revision(protocolID string) string {
	dw.mu.RLock()
	defer dw.mu.RUnlock()
	return dw.revisions[protocolID]
}

// Close stops the watcher.
func (dw *DocumentWatcher) Close() error {
	close(dw.done)
	return dw.watcher.Close()
}

func (dw *DocumentWatcher) run() {
	for {
		select {
		case <-dw.done:
			return
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			dw.mu.RLock()
			protocolID, tracked := dw.paths[abs]
			dw.mu.RUnlock()
			if tracked {
				dw.refresh(abs, protocolID)
			}
		case _, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			// watch errors are advisory; the revision gate remains the
			// source of truth
		}
	}
}

func (dw *DocumentWatcher) refresh(path, protocolID string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}
	doc, err := DecodeDocument(raw)
	if err != nil {
		return
	}
	rev, err := Revision(doc)
	if err != nil {
		return
	}
	dw.mu.Lock()
	dw.revisions[protocolID] = rev
	dw.mu.Unlock()
}
