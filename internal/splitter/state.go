package splitter

import "fmt"

// Mode selects how much of the input is split.
type Mode string

const (
	// Full splits the whole input into shards of ChunkSize rows.
	Full Mode = "full"
	// Ranged splits data rows [Start, End] only.
	Ranged Mode = "ranged"
)

// ParseMode accepts "full" and "ranged"; empty means Full.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Full:
		return Full, nil
	case Ranged:
		return Ranged, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Counters are the run tallies. Scanned, WithoutValue, Written and Shards
// are the reported totals; the rest break down the records that produced no
// output.
type Counters struct {
	Scanned      int64 `json:"rows_scanned"`
	WithoutValue int64 `json:"rows_without_value"`
	Written      int64 `json:"rows_written"`
	Shards       int64 `json:"shards"`

	Excluded   int64 `json:"rows_excluded"`
	Filtered   int64 `json:"values_filtered"`
	Duplicates int64 `json:"values_duplicate"`
	Skipped    int64 `json:"rows_skipped"`
}

// RunState is owned by the consuming goroutine and passed by pointer through
// every stage of one run.
type RunState struct {
	Mode  Mode
	Start int64
	End   int64
	// Index is the 1-based position of the current data row.
	Index    int64
	Finished bool
	Counters
}

// inRange classifies the current Index against the ranged bounds. Full mode
// is always in range.
func (s *RunState) inRange() (before, after bool) {
	if s.Mode != Ranged {
		return false, false
	}
	return s.Index < s.Start, s.Index > s.End
}

// atEnd reports that the last row of the range was just handled.
func (s *RunState) atEnd() bool {
	return s.Mode == Ranged && s.Index == s.End
}
