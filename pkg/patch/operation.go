// Package patch defines the JSON Patch operation model used for semantic
// protocol edits: RFC 6902 operations extended with @id: path segments,
// plus the structural validation applied before a draft is accepted or a
// publish applies its patch.
package patch

import (
	"fmt"
	"strings"
)

// Op identifies a JSON Patch operation kind (RFC 6902).
type Op string

// Supported operation kinds.
const (
	// OpAdd inserts a value at the target location.
	OpAdd Op = "add"
	// OpRemove deletes the value at the target location.
	OpRemove Op = "remove"
	// OpReplace overwrites the value at the target location.
	OpReplace Op = "replace"
	// OpMove relocates the value at From to the target location.
	OpMove Op = "move"
	// OpCopy duplicates the value at From to the target location.
	OpCopy Op = "copy"
	// OpTest asserts the value at the target location equals Value.
	OpTest Op = "test"
)

// Operation is a single edit. Operations are immutable once created and
// applied in the order the user made them; later operations on the same
// path override earlier ones.
type Operation struct {
	Op    Op     `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	From  string `json:"from,omitempty"`
}

// ValidationResult aggregates structural validation findings for a batch.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var knownOps = map[Op]struct{}{
	OpAdd: {}, OpRemove: {}, OpReplace: {}, OpMove: {}, OpCopy: {}, OpTest: {},
}

// ValidateOperations checks every operation in the batch: the op kind is
// known, paths are rooted pointers, immutable prefixes are not targeted
// (directly or through From), and value/from requirements hold. It is pure
// and runs both at draft save and again immediately before publish applies
// the patch, so a draft crafted or corrupted between the two is still
// caught.
func ValidateOperations(ops []Operation, immutable ImmutablePathSet) ValidationResult {
	var errs []string
	for i, op := range ops {
		if _, ok := knownOps[op.Op]; !ok {
			errs = append(errs, fmt.Sprintf("op[%d]: unknown op %q", i, op.Op))
			continue
		}
		if !strings.HasPrefix(op.Path, "/") {
			errs = append(errs, fmt.Sprintf("op[%d]: path %q must start with /", i, op.Path))
		}
		if immutable.Covers(op.Path) {
			errs = append(errs, fmt.Sprintf("op[%d]: path %q targets an immutable path", i, op.Path))
		}
		switch op.Op {
		case OpAdd, OpReplace:
			if op.Value == nil {
				errs = append(errs, fmt.Sprintf("op[%d]: %s requires a value", i, op.Op))
			}
		case OpMove, OpCopy:
			if op.From == "" {
				errs = append(errs, fmt.Sprintf("op[%d]: %s requires a from path", i, op.Op))
			} else {
				if !strings.HasPrefix(op.From, "/") {
					errs = append(errs, fmt.Sprintf("op[%d]: from %q must start with /", i, op.From))
				}
				if immutable.Covers(op.From) {
					errs = append(errs, fmt.Sprintf("op[%d]: from %q targets an immutable path", i, op.From))
				}
			}
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
