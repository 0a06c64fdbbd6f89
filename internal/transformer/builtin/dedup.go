package builtin

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// DefaultDedupWindow bounds how many distinct values Dedup remembers.
const DefaultDedupWindow = 1_000_000

// Dedup remembers recently seen values across a run. Keys are the xxh3-64 of
// the lower-cased value; once the window is full the least recently seen key
// is forgotten, so a value can reappear after window other distinct values.
//
// Dedup is not safe for concurrent use; the engine owns it.
type Dedup struct {
	seen *lru.Cache[uint64, struct{}]
}

// NewDedup returns a Dedup remembering up to window keys (DefaultDedupWindow
// when window <= 0).
func NewDedup(window int) (*Dedup, error) {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	c, err := lru.New[uint64, struct{}](window)
	if err != nil {
		return nil, fmt.Errorf("dedup window %d: %w", window, err)
	}
	return &Dedup{seen: c}, nil
}

// Seen reports whether v was already observed and records it otherwise.
func (d *Dedup) Seen(v string) bool {
	k := xxh3.HashString(strings.ToLower(v))
	if d.seen.Contains(k) {
		d.seen.Get(k) // refresh recency
		return true
	}
	d.seen.Add(k, struct{}{})
	return false
}

// Len reports how many keys are currently remembered.
func (d *Dedup) Len() int { return d.seen.Len() }
