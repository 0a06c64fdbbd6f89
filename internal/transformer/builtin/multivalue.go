package builtin

import "strings"

// SplitValues splits a multi-valued cell on delim, cleans every piece and
// discards the empty ones. Order is preserved. An empty or blank cell yields
// nil.
func SplitValues(cell, delim string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(cell, delim) {
		if p = Clean(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitSecondary restructures a secondary multi-valued cell into its primary
// value and the remaining values rejoined with delim. Every piece loses a
// leading prefix (matched case-insensitively) before being cleaned.
//
//	SplitSecondary("tel:111; TEL:222;333", ";", "tel:") == ("111", "222;333")
func SplitSecondary(cell, delim, prefix string) (primary, overflow string) {
	var kept []string
	for _, p := range strings.Split(cell, delim) {
		p = stripPrefixFold(Clean(p), prefix)
		if p = Clean(p); p != "" {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return "", ""
	case 1:
		return kept[0], ""
	default:
		return kept[0], strings.Join(kept[1:], delim)
	}
}

func stripPrefixFold(s, prefix string) string {
	if prefix == "" || len(s) < len(prefix) {
		return s
	}
	if strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}
