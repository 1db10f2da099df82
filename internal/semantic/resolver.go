package semantic

import (
	"fmt"

	"usdmcore/pkg/patch"
)

// ResolutionError reports why a symbolic path could not be resolved against
// the document snapshot. Kind distinguishes the two user-facing failure
// modes.
type ResolutionError struct {
	Path    string
	Segment string
	Kind    ResolutionErrorKind
	ID      string
}

// ResolutionErrorKind enumerates resolver failure modes.
type ResolutionErrorKind string

const (
	// ResolutionNonArray reports an @id: segment applied to a non-array node.
	ResolutionNonArray ResolutionErrorKind = "non_array"
	// ResolutionIDNotFound reports no element carrying the requested id.
	ResolutionIDNotFound ResolutionErrorKind = "id_not_found"
)

func (e *ResolutionError) Error() string {
	switch e.Kind {
	case ResolutionNonArray:
		return fmt.Sprintf("path %s: @id segment %q used on non-array node", e.Path, e.Segment)
	case ResolutionIDNotFound:
		return fmt.Sprintf("path %s: entity with id %q not found", e.Path, e.ID)
	default:
		return fmt.Sprintf("path %s: cannot resolve segment %q", e.Path, e.Segment)
	}
}

// Resolve converts a pointer path that may contain @id:<value> segments
// into one containing only object keys and numeric indices, by walking the
// supplied document snapshot. Ids are matched by linear scan; first match
// wins (upstream generation is trusted to keep ids unique per collection).
// Paths with no @id: segments come back unchanged.
func Resolve(doc any, path string) (string, error) {
	segments, err := patch.SplitPointer(path)
	if err != nil {
		return "", err
	}
	if !patch.HasIDSegments(path) {
		return path, nil
	}
	resolved := make([]string, 0, len(segments))
	node := doc
	for _, seg := range segments {
		if id, ok := patch.IsIDSegment(seg); ok {
			arr, isArr := asSlice(node)
			if !isArr {
				return "", &ResolutionError{Path: path, Segment: seg, Kind: ResolutionNonArray, ID: id}
			}
			idx := -1
			for i, elem := range arr {
				if got, ok := entityID(elem); ok && got == id {
					idx = i
					break
				}
			}
			if idx < 0 {
				return "", &ResolutionError{Path: path, Segment: seg, Kind: ResolutionIDNotFound, ID: id}
			}
			resolved = append(resolved, fmt.Sprintf("%d", idx))
			node = arr[idx]
			continue
		}
		resolved = append(resolved, seg)
		node = descend(node, seg)
	}
	return patch.JoinPointer(resolved), nil
}

// descend moves one plain segment down the tree; a missing child yields nil,
// which only matters if a later @id: segment needs to scan it.
func descend(node any, seg string) any {
	switch cur := node.(type) {
	case map[string]any:
		return cur[seg]
	case []any:
		if idx, ok := arrayIndex(seg); ok && idx < len(cur) {
			return cur[idx]
		}
		return nil
	default:
		return nil
	}
}

// ResolveAll resolves the path (and from, where present) of every operation
// independently against the same snapshot, returning the resolved batch and
// every resolution error rather than stopping at the first, so one publish
// attempt reports all broken references at once.
func ResolveAll(doc any, ops []patch.Operation) ([]patch.Operation, []error) {
	resolved := make([]patch.Operation, 0, len(ops))
	var errs []error
	for i, op := range ops {
		out := op
		p, err := Resolve(doc, op.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("op[%d]: %w", i, err))
		} else {
			out.Path = p
		}
		if op.From != "" {
			f, err := Resolve(doc, op.From)
			if err != nil {
				errs = append(errs, fmt.Errorf("op[%d] from: %w", i, err))
			} else {
				out.From = f
			}
		}
		resolved = append(resolved, out)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return resolved, nil
}
