package semantic

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"usdmcore/pkg/patch"
)

// Applier applies operation batches all-or-nothing. A batch either yields a
// fully patched copy of the document or an error with the original
// untouched; there is no partial application. Half-applied patches would
// leave the document structurally inconsistent with no record of which
// operations landed.
type Applier struct {
	immutable patch.ImmutablePathSet
}

// NewApplier builds an applier enforcing the supplied immutable-path
// policy. A nil set falls back to the USDM defaults.
func NewApplier(immutable patch.ImmutablePathSet) *Applier {
	if immutable == nil {
		immutable = patch.DefaultImmutablePaths()
	}
	return &Applier{immutable: immutable}
}

// Apply validates, resolves, and applies ops to a deep copy of doc,
// returning the patched copy. The input document is never mutated. An empty
// batch is a successful no-op.
func (a *Applier) Apply(doc any, ops []patch.Operation) (any, error) {
	if len(ops) == 0 {
		return doc, nil
	}
	if res := patch.ValidateOperations(ops, a.immutable); !res.Valid {
		return nil, fmt.Errorf("invalid patch: %s", strings.Join(res.Errors, "; "))
	}
	work := CloneDocument(doc)
	resolved, errs := ResolveAll(work, ops)
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, err := range errs {
			msgs[i] = err.Error()
		}
		return nil, fmt.Errorf("resolve patch: %s", strings.Join(msgs, "; "))
	}
	for i, op := range resolved {
		next, err := applyOne(work, op)
		if err != nil {
			return nil, fmt.Errorf("op[%d] %s %s: %w", i, op.Op, op.Path, err)
		}
		work = next
	}
	return work, nil
}

// DryRun reports whether the batch would apply, without surfacing the
// patched document. Used to warn at draft-save time without blocking
// further editing.
func (a *Applier) DryRun(doc any, ops []patch.Operation) error {
	_, err := a.Apply(doc, ops)
	return err
}

// applyOne dispatches a single resolved operation. It may return a new root
// when the operation targets the document root itself.
func applyOne(root any, op patch.Operation) (any, error) {
	switch op.Op {
	case patch.OpAdd:
		return setValue(root, op.Path, normalizeValue(op.Value), true)
	case patch.OpReplace:
		return setValue(root, op.Path, normalizeValue(op.Value), false)
	case patch.OpRemove:
		return removeValue(root, op.Path)
	case patch.OpMove:
		val, err := getValue(root, op.From)
		if err != nil {
			return nil, err
		}
		next, err := removeValue(root, op.From)
		if err != nil {
			return nil, err
		}
		return setValue(next, op.Path, val, true)
	case patch.OpCopy:
		val, err := getValue(root, op.From)
		if err != nil {
			return nil, err
		}
		return setValue(root, op.Path, CloneDocument(val), true)
	case patch.OpTest:
		val, err := getValue(root, op.Path)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(val, normalizeValue(op.Value)) {
			return nil, fmt.Errorf("test failed at %s", op.Path)
		}
		return root, nil
	default:
		return nil, fmt.Errorf("unknown op %q", op.Op)
	}
}

// normalizeValue round-trips a value through JSON so values constructed in
// Go (ints, typed structs) compare and store identically to decoded ones.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	switch v.(type) {
	case map[string]any, []any, string, float64, bool:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func getValue(root any, pointer string) (any, error) {
	segments, err := patch.SplitPointer(pointer)
	if err != nil {
		return nil, err
	}
	node := root
	for _, seg := range segments {
		switch cur := node.(type) {
		case map[string]any:
			child, ok := cur[seg]
			if !ok {
				return nil, fmt.Errorf("key %q not found", seg)
			}
			node = child
		case []any:
			idx, ok := arrayIndex(seg)
			if !ok || idx >= len(cur) {
				return nil, fmt.Errorf("index %q out of range", seg)
			}
			node = cur[idx]
		default:
			return nil, fmt.Errorf("segment %q addresses a scalar", seg)
		}
	}
	return node, nil
}

// setValue writes val at pointer, inserting for add semantics or requiring
// existence otherwise. Returns the (possibly new) root.
func setValue(root any, pointer string, val any, insert bool) (any, error) {
	segments, err := patch.SplitPointer(pointer)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return val, nil
	}
	parent, err := getValue(root, patch.JoinPointer(segments[:len(segments)-1]))
	if err != nil {
		return nil, err
	}
	last := segments[len(segments)-1]
	switch container := parent.(type) {
	case map[string]any:
		if !insert {
			if _, ok := container[last]; !ok {
				return nil, fmt.Errorf("key %q not found", last)
			}
		}
		container[last] = val
		return root, nil
	case []any:
		if last == patch.AppendSegment {
			if !insert {
				return nil, fmt.Errorf("cannot replace past-the-end element")
			}
			return spliceParent(root, segments[:len(segments)-1], append(container, val))
		}
		idx, ok := arrayIndex(last)
		if !ok {
			return nil, fmt.Errorf("segment %q is not an array index", last)
		}
		if insert {
			if idx > len(container) {
				return nil, fmt.Errorf("index %d out of range for insert", idx)
			}
			out := make([]any, 0, len(container)+1)
			out = append(out, container[:idx]...)
			out = append(out, val)
			out = append(out, container[idx:]...)
			return spliceParent(root, segments[:len(segments)-1], out)
		}
		if idx >= len(container) {
			return nil, fmt.Errorf("index %d out of range", idx)
		}
		container[idx] = val
		return root, nil
	default:
		return nil, fmt.Errorf("parent of %q is a scalar", last)
	}
}

func removeValue(root any, pointer string) (any, error) {
	segments, err := patch.SplitPointer(pointer)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("cannot remove document root")
	}
	parent, err := getValue(root, patch.JoinPointer(segments[:len(segments)-1]))
	if err != nil {
		return nil, err
	}
	last := segments[len(segments)-1]
	switch container := parent.(type) {
	case map[string]any:
		if _, ok := container[last]; !ok {
			return nil, fmt.Errorf("key %q not found", last)
		}
		delete(container, last)
		return root, nil
	case []any:
		idx, ok := arrayIndex(last)
		if !ok || idx >= len(container) {
			return nil, fmt.Errorf("index %q out of range", last)
		}
		out := make([]any, 0, len(container)-1)
		out = append(out, container[:idx]...)
		out = append(out, container[idx+1:]...)
		return spliceParent(root, segments[:len(segments)-1], out)
	default:
		return nil, fmt.Errorf("parent of %q is a scalar", last)
	}
}

// spliceParent rewrites the slice held at parentSegments with its new
// backing array. Slices change identity on insert/remove, so the reference
// held by the grandparent must be replaced.
func spliceParent(root any, parentSegments []string, newSlice []any) (any, error) {
	if len(parentSegments) == 0 {
		return newSlice, nil
	}
	grand, err := getValue(root, patch.JoinPointer(parentSegments[:len(parentSegments)-1]))
	if err != nil {
		return nil, err
	}
	last := parentSegments[len(parentSegments)-1]
	switch container := grand.(type) {
	case map[string]any:
		container[last] = newSlice
		return root, nil
	case []any:
		idx, ok := arrayIndex(last)
		if !ok || idx >= len(container) {
			return nil, fmt.Errorf("index %q out of range", last)
		}
		container[idx] = newSlice
		return root, nil
	default:
		return nil, fmt.Errorf("parent of %q is a scalar", last)
	}
}
