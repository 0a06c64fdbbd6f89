package splitter

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"csvsplit/internal/transformer"
)

// ColumnNames are the header names the engine looks for.
type ColumnNames struct {
	Value     string `json:"value" yaml:"value"`
	Domain    string `json:"domain" yaml:"domain"`
	Secondary string `json:"secondary" yaml:"secondary"`
	Overflow  string `json:"overflow" yaml:"overflow"`
}

// DefaultColumnNames matches the contact export layout.
func DefaultColumnNames() ColumnNames {
	return ColumnNames{
		Value:     "work email",
		Domain:    "domain",
		Secondary: "phone numbers",
		Overflow:  "other phone numbers",
	}
}

// WithDefaults returns n with every blank name taken from DefaultColumnNames.
func (n ColumnNames) WithDefaults() ColumnNames {
	d := DefaultColumnNames()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&n.Value, d.Value)
	fill(&n.Domain, d.Domain)
	fill(&n.Secondary, d.Secondary)
	fill(&n.Overflow, d.Overflow)
	return n
}

// ResolveHeader copies rec into the run header and resolves column positions.
// When the secondary column exists without its overflow companion, the
// companion is appended to the returned header. A missing value column is an
// ErrConfiguration.
func ResolveHeader(rec []string, names ColumnNames) ([]string, transformer.Columns, error) {
	header := append(make([]string, 0, len(rec)+1), rec...)
	fold := cases.Fold()

	key := func(s string) string {
		return fold.String(norm.NFC.String(strings.TrimSpace(s)))
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		k := key(h)
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}
	find := func(name string) int {
		if strings.TrimSpace(name) == "" {
			return transformer.Absent
		}
		if i, ok := index[key(name)]; ok {
			return i
		}
		return transformer.Absent
	}

	cols := transformer.Columns{
		Value:     find(names.Value),
		Domain:    find(names.Domain),
		Secondary: find(names.Secondary),
		Overflow:  transformer.Absent,
	}
	if cols.Value == transformer.Absent {
		return nil, cols, fmt.Errorf("%w: column %q not found in header", ErrConfiguration, names.Value)
	}
	if cols.Secondary != transformer.Absent {
		cols.Overflow = find(names.Overflow)
		if cols.Overflow == transformer.Absent {
			header = append(header, names.Overflow)
			cols.Overflow = len(header) - 1
		}
	}
	cols.Width = len(header)
	return header, cols, nil
}
