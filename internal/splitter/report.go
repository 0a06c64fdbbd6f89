package splitter

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"csvsplit/internal/shard"
)

// Summary is the externally reported result of a run.
type Summary struct {
	RunID     string `json:"run_id,omitempty"`
	Input     string `json:"input"`
	OutputDir string `json:"output_dir"`
	Mode      Mode   `json:"mode"`

	ChunkSize int   `json:"chunk_size,omitempty"`
	Start     int64 `json:"start,omitempty"`
	End       int64 `json:"end,omitempty"`
	// BatchSize is the effective ranged shard capacity; 0 means one shard.
	BatchSize int `json:"batch_size,omitempty"`

	Counters

	// Pauses counts how often writer backpressure held the decoder.
	Pauses int64 `json:"backpressure_pauses"`

	// Finished is false when the run stopped on an error or cancellation.
	Finished   bool         `json:"finished"`
	Files      []shard.Info `json:"shard_files"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

func (e *Engine) summary(st *RunState, c *consumer, started time.Time) *Summary {
	s := &Summary{
		RunID:      e.opt.RunID,
		Input:      e.opt.Source.Name(),
		OutputDir:  e.opt.OutputDir,
		Mode:       st.Mode,
		Counters:   st.Counters,
		Finished:   st.Finished,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if st.Mode == Ranged {
		s.Start, s.End, s.BatchSize = st.Start, st.End, e.opt.Batch
	} else {
		s.ChunkSize = e.opt.ChunkSize
	}
	if c.fl != nil {
		s.Pauses = c.fl.pauses
	}
	if c.w != nil {
		s.Files = append([]shard.Info(nil), c.w.Shards()...)
	}
	return s
}

// Duration is the wall time of the run.
func (s *Summary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

type kv struct {
	k string
	v any
}

// WriteText prints the human-readable summary block.
func (s *Summary) WriteText(w io.Writer) error {
	title, rule := "=== CSV Split Summary ===", "========================"
	if s.Mode == Ranged {
		title, rule = "=== CSV Range Split Summary ===", "=============================="
	}
	lines := []kv{
		{"input", s.Input},
		{"outputDir", s.OutputDir},
		{"filesCreated", s.Shards},
		{"rowsScanned", s.Scanned},
		{"rowsWithoutValue", s.WithoutValue},
		{"rowsWritten", s.Written},
	}
	if s.Mode == Ranged {
		var batch any = s.BatchSize
		if s.BatchSize == 0 {
			batch = "none (single shard)"
		}
		lines = append(lines, kv{"start", s.Start}, kv{"end", s.End}, kv{"batchSize", batch})
	} else {
		lines = append(lines, kv{"chunkSize", s.ChunkSize})
	}
	lines = append(lines,
		kv{"excluded", s.Excluded},
		kv{"filtered", s.Filtered},
		kv{"duplicates", s.Duplicates},
		kv{"skipped", s.Skipped},
		kv{"duration", s.Duration().Round(time.Millisecond)},
	)

	if _, err := fmt.Fprintf(w, "\n%s\n", title); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %v\n", l.k, l.v); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n\n", rule)
	return err
}

// WriteJSON encodes the summary as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteFile writes the JSON summary to path.
func (s *Summary) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("summary file: %w", err)
	}
	if err := s.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("summary file %s: %w", path, err)
	}
	return f.Close()
}
