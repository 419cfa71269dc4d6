package output

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxResultBytes bounds the text of a single tool result.
const MaxResultBytes = 1 << 20

// CapText returns s cut to at most limit bytes and whether it was cut.
// The cut falls on the last line break before the limit when there is one,
// otherwise on a rune boundary, and a marker line is appended. A non-positive limit uses MaxResultBytes.
func CapText(s string, limit int) (string, bool) {
	if limit <= 0 {
		limit = MaxResultBytes
	}
	if len(s) <= limit {
		return s, false
	}

	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i+1]
	} else {
		cut += "\n"
	}
	return cut + TruncationMarker(limit), true
}

// TruncationMarker is the line CapText appends to cut text.
func TruncationMarker(limit int) string {
	return fmt.Sprintf("... output truncated at %d bytes", limit)
}
