// Package builtin holds the per-record rules the row transformer composes:
// domain exclusion, keyword block-listing, multi-value splitting and value
// de-duplication.
package builtin

import "strings"

// DefaultBlockKeywords lists the role-account fragments that disqualify a
// contact value.
var DefaultBlockKeywords = []string{
	"support", "noreply", "no-reply", "donotreply", "do-not-reply",
	"info@", "admin@", "sales@", "help@", "contact@",
	"webmaster", "postmaster", "abuse@", "privacy@",
	"careers@", "jobs@", "hr@",
}

// Blocklist matches values against keywords by case-insensitive substring.
type Blocklist struct {
	keywords []string
}

// NewBlocklist lower-cases and trims keywords; blank entries are ignored.
func NewBlocklist(keywords []string) Blocklist {
	b := Blocklist{keywords: make([]string, 0, len(keywords))}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			b.keywords = append(b.keywords, k)
		}
	}
	return b
}

// Match reports whether v contains any keyword. It returns the keyword that
// matched first so callers can log why a value was dropped.
func (b Blocklist) Match(v string) (string, bool) {
	if len(b.keywords) == 0 {
		return "", false
	}
	lv := strings.ToLower(v)
	for _, k := range b.keywords {
		if strings.Contains(lv, k) {
			return k, true
		}
	}
	return "", false
}

// Len reports the number of active keywords.
func (b Blocklist) Len() int { return len(b.keywords) }
