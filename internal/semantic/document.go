// Package semantic implements the patch-editing and publish core: id-path
// resolution, all-or-nothing patch application, draft persistence, the
// gated publish pipeline, and the hash-chained change log.
//
// The protocol document itself is externally defined; it is handled here as
// an opaque tree of maps, slices, and scalars addressed by pointer paths.
package semantic

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// DecodeDocument parses raw JSON into the opaque tree form every other
// function in this package operates on.
func DecodeDocument(raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// EncodeDocument renders the tree as indented JSON.
func EncodeDocument(doc any) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Revision computes the content hash used for optimistic concurrency: the
// sha256 of the document's compact JSON form. encoding/json emits map keys
// sorted, so the serialization is canonical for any tree that round-tripped
// through JSON.
func Revision(doc any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("hash document: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// CloneDocument deep-copies a tree. Every apply works on an owned copy so
// the caller's document is never mutated, success or failure.
func CloneDocument(doc any) any {
	switch node := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, v := range node {
			out[k] = CloneDocument(v)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, v := range node {
			out[i] = CloneDocument(v)
		}
		return out
	default:
		// scalars (string, float64, bool, nil) are value types post-decode
		return node
	}
}

func asMap(node any) (map[string]any, bool) {
	m, ok := node.(map[string]any)
	return m, ok
}

func asSlice(node any) ([]any, bool) {
	s, ok := node.([]any)
	return s, ok
}

// arrayIndex parses seg as a non-negative array index.
func arrayIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// entityID extracts the id field of a collection element, tolerating both
// string and numeric ids.
func entityID(node any) (string, bool) {
	m, ok := asMap(node)
	if !ok {
		return "", false
	}
	raw, ok := m["id"]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
