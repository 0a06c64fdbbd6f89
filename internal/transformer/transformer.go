// Package transformer turns one decoded contact record into the derived rows
// written to shards.
//
// Column positions are resolved once from the header (see Columns) and the
// per-record hot path never looks a column up by name. A Transformer is owned
// by a single goroutine; Result.Rows is reused and is only valid until the next
// call to Apply.
package transformer

import (
	"errors"
	"fmt"
	"strings"

	"csvsplit/internal/shard"
	"csvsplit/internal/transformer/builtin"
)

// Absent marks an optional column that is not in the header.
const Absent = -1

// Columns is the immutable column table built from the header.
type Columns struct {
	Value     int // required multi-valued contact column
	Domain    int // optional, Absent when missing
	Secondary int // optional, Absent when missing
	Overflow  int // set whenever Secondary is present
	Width     int // header width after any appended column
}

// Rules are the textual knobs of the transform.
type Rules struct {
	Delimiter       string
	ExcludeMarkers  []string
	BlockKeywords   []string
	SecondaryPrefix string
}

// DefaultRules returns the rule set used when nothing is configured.
func DefaultRules() Rules {
	return Rules{
		Delimiter:       ";",
		ExcludeMarkers:  append([]string(nil), builtin.DefaultExcludeMarkers...),
		BlockKeywords:   append([]string(nil), builtin.DefaultBlockKeywords...),
		SecondaryPrefix: "tel:",
	}
}

// WithDefaults returns r with every empty field taken from DefaultRules.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	if r.Delimiter == "" {
		r.Delimiter = d.Delimiter
	}
	if len(r.ExcludeMarkers) == 0 {
		r.ExcludeMarkers = d.ExcludeMarkers
	}
	if len(r.BlockKeywords) == 0 {
		r.BlockKeywords = d.BlockKeywords
	}
	if r.SecondaryPrefix == "" {
		r.SecondaryPrefix = d.SecondaryPrefix
	}
	return r
}

// Outcome classifies what happened to one source record.
type Outcome uint8

const (
	// Emitted means at least one derived row was produced.
	Emitted Outcome = iota
	// Excluded records matched a domain marker and are not counted as scanned.
	Excluded
	// NoValue records had a blank value cell or no value left after splitting.
	NoValue
	// Filtered records lost every value to the block-list or de-duplication.
	Filtered
)

func (o Outcome) String() string {
	switch o {
	case Emitted:
		return "emitted"
	case Excluded:
		return "excluded"
	case NoValue:
		return "no_value"
	case Filtered:
		return "filtered"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// Result is the transform of one source record.
type Result struct {
	Outcome Outcome
	// Rows are the derived rows in value order; only the last one has
	// Boundary set.
	Rows []shard.Row
	// Filtered and Duplicates count individual values dropped from this record.
	Filtered   int
	Duplicates int
	// Reason describes the first drop, for sampled logging.
	Reason string
}

// ErrNoValueColumn is returned by New when Columns.Value is not resolved.
var ErrNoValueColumn = errors.New("value column not resolved")

// Transformer applies Rules to records laid out as described by Columns.
type Transformer struct {
	cols   Columns
	delim  string
	prefix string
	domain builtin.DomainRule
	block  builtin.Blocklist
	dedup  *builtin.Dedup

	rows []shard.Row
}

// Option customizes a Transformer.
type Option func(*Transformer)

// WithDedup drops values already seen in the run.
func WithDedup(d *builtin.Dedup) Option {
	return func(t *Transformer) { t.dedup = d }
}

// New validates the column table and compiles the rules.
func New(cols Columns, rules Rules, opts ...Option) (*Transformer, error) {
	if cols.Value < 0 {
		return nil, ErrNoValueColumn
	}
	if cols.Secondary >= 0 && cols.Overflow < 0 {
		return nil, fmt.Errorf("secondary column %d has no overflow column", cols.Secondary)
	}
	if hi := max(cols.Value, cols.Domain, cols.Secondary, cols.Overflow); cols.Width <= hi {
		return nil, fmt.Errorf("header width %d does not cover column %d", cols.Width, hi)
	}
	if rules.Delimiter == "" {
		return nil, errors.New("value delimiter must not be empty")
	}
	t := &Transformer{
		cols:   cols,
		delim:  rules.Delimiter,
		prefix: rules.SecondaryPrefix,
		domain: builtin.NewDomainRule(rules.ExcludeMarkers),
		block:  builtin.NewBlocklist(rules.BlockKeywords),
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Columns returns the column table the transformer was built with.
func (t *Transformer) Columns() Columns { return t.cols }

// Apply transforms rec. rec is not modified and not retained.
func (t *Transformer) Apply(rec []string) Result {
	c := t.cols
	if c.Domain >= 0 {
		if d := cell(rec, c.Domain); t.domain.Excluded(d) {
			return Result{Outcome: Excluded, Reason: "excluded domain " + d}
		}
	}

	raw := cell(rec, c.Value)
	if strings.TrimSpace(raw) == "" {
		return Result{Outcome: NoValue, Reason: "missing value"}
	}
	values := builtin.SplitValues(raw, t.delim)
	if len(values) == 0 {
		return Result{Outcome: NoValue, Reason: "empty value set"}
	}

	var primary, overflow string
	if c.Secondary >= 0 {
		primary, overflow = builtin.SplitSecondary(cell(rec, c.Secondary), t.delim, t.prefix)
	}

	res := Result{}
	t.rows = t.rows[:0]
	for _, v := range values {
		if k, hit := t.block.Match(v); hit {
			res.Filtered++
			if res.Reason == "" {
				res.Reason = "blocked keyword " + k
			}
			continue
		}
		if t.dedup != nil && t.dedup.Seen(v) {
			res.Duplicates++
			if res.Reason == "" {
				res.Reason = "duplicate value"
			}
			continue
		}
		t.rows = append(t.rows, shard.Row{Fields: t.derive(rec, v, primary, overflow)})
	}
	if len(t.rows) == 0 {
		res.Outcome = Filtered
		return res
	}
	t.rows[len(t.rows)-1].Boundary = true
	res.Outcome = Emitted
	res.Rows = t.rows
	return res
}

func (t *Transformer) derive(rec []string, value, primary, overflow string) []string {
	c := t.cols
	fields := make([]string, max(len(rec), c.Width))
	copy(fields, rec)
	fields[c.Value] = value
	if c.Secondary >= 0 {
		fields[c.Secondary] = primary
		fields[c.Overflow] = overflow
	}
	return fields
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
