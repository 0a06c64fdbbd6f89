package builtin

import "strings"

// mojibakeNBSP is U+00A0 after a UTF-8 -> Latin-1 -> UTF-8 round trip, which
// some CRM exports produce.
const mojibakeNBSP = "\u00c2\u00a0"

// Clean trims surrounding whitespace (NBSP included) from s and repairs the
// double-encoded no-break space.
func Clean(s string) string {
	if strings.Contains(s, mojibakeNBSP) {
		s = strings.ReplaceAll(s, mojibakeNBSP, " ")
	}
	return strings.TrimSpace(s)
}
