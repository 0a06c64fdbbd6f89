package splitter

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// dropSampler keeps the first few examples of every drop reason so a run
// can explain what it skipped without logging every record.
type dropSampler struct {
	limit   int
	count   map[string]int64
	samples map[string][]string
}

func newDropSampler(limit int) *dropSampler {
	return &dropSampler{
		limit:   limit,
		count:   make(map[string]int64),
		samples: make(map[string][]string),
	}
}

// add records one drop of kind. detail is kept only while the kind has
// fewer than limit samples.
func (s *dropSampler) add(kind string, line int, detail string) {
	s.count[kind]++
	if len(s.samples[kind]) < s.limit {
		s.samples[kind] = append(s.samples[kind], fmt.Sprintf("line %d: %s", line, detail))
	}
}

func (s *dropSampler) log(lg *zap.Logger) {
	kinds := make([]string, 0, len(s.count))
	for k := range s.count {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		lg.Info("dropped records",
			zap.String("kind", k),
			zap.Int64("count", s.count[k]),
			zap.Strings("first", s.samples[k]),
		)
	}
}
