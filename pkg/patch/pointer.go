package patch

import (
	"fmt"
	"strings"
)

// IDSegmentPrefix marks a symbolic array-addressing segment. A segment of
// the form "@id:<value>" selects the element of the array at that position
// whose id field equals <value>; it is resolved to a numeric index against
// a specific document snapshot before standard application.
const IDSegmentPrefix = "@id:"

// AppendSegment is the RFC 6902 end-of-array token accepted by add.
const AppendSegment = "-"

// SplitPointer breaks a slash-delimited pointer string into its unescaped
// segments. The empty pointer "" addresses the document root and yields no
// segments.
func SplitPointer(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("pointer %q must start with /", pointer)
	}
	raw := strings.Split(pointer[1:], "/")
	segments := make([]string, len(raw))
	for i, seg := range raw {
		segments[i] = UnescapeSegment(seg)
	}
	return segments, nil
}

// JoinPointer rebuilds a pointer string from unescaped segments.
func JoinPointer(segments []string) string {
	if len(segments) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(EscapeSegment(seg))
	}
	return b.String()
}

// EscapeSegment applies RFC 6901 escaping (~ then /).
func EscapeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~", "~0")
	return strings.ReplaceAll(seg, "/", "~1")
}

// UnescapeSegment reverses RFC 6901 escaping (/ then ~).
func UnescapeSegment(seg string) string {
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}

// IsIDSegment reports whether seg is a symbolic @id: segment and returns
// the referenced entity id.
func IsIDSegment(seg string) (string, bool) {
	if strings.HasPrefix(seg, IDSegmentPrefix) {
		return seg[len(IDSegmentPrefix):], true
	}
	return "", false
}

// HasIDSegments reports whether pointer contains any @id: segment. Paths
// without one resolve to themselves unchanged.
func HasIDSegments(pointer string) bool {
	segments, err := SplitPointer(pointer)
	if err != nil {
		return false
	}
	for _, seg := range segments {
		if _, ok := IsIDSegment(seg); ok {
			return true
		}
	}
	return false
}
