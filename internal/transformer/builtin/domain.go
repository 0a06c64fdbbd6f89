package builtin

import "strings"

// DefaultExcludeMarkers identify government and education domains.
var DefaultExcludeMarkers = []string{".gov", ".edu"}

// DomainRule excludes records whose domain cell contains one of its markers.
type DomainRule struct {
	markers []string
}

func NewDomainRule(markers []string) DomainRule {
	r := DomainRule{markers: make([]string, 0, len(markers))}
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			r.markers = append(r.markers, m)
		}
	}
	return r
}

// Excluded reports whether cell contains a marker, case-insensitively.
func (r DomainRule) Excluded(cell string) bool {
	if cell == "" || len(r.markers) == 0 {
		return false
	}
	lc := strings.ToLower(cell)
	for _, m := range r.markers {
		if strings.Contains(lc, m) {
			return true
		}
	}
	return false
}
