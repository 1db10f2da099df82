package patch

import "strings"

// ImmutablePathSet is a fixed list of pointer prefixes no operation may
// target, directly or as a move/copy source.
type ImmutablePathSet []string

// DefaultImmutablePaths returns the prefixes protected in USDM protocol
// documents: standard/version identity, generation metadata, and the
// provenance block.
func DefaultImmutablePaths() ImmutablePathSet {
	return ImmutablePathSet{
		"/usdmVersion",
		"/systemName",
		"/systemVersion",
		"/generatedAt",
		"/provenance",
		"/study/id",
	}
}

// Covers reports whether pointer falls under any protected prefix. Prefix
// matches stop at segment boundaries, so "/study/identity" is not covered
// by "/study/id".
func (s ImmutablePathSet) Covers(pointer string) bool {
	for _, prefix := range s {
		if pointer == prefix || strings.HasPrefix(pointer, prefix+"/") {
			return true
		}
	}
	return false
}
