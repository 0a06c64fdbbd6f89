package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"

	"csvsplit/internal/config"
	"csvsplit/internal/datasource/file"
	csvparser "csvsplit/internal/parser/csv"
	"csvsplit/internal/splitter"
	"csvsplit/internal/transformer"
)

func newInspectCmd(f *flags, stdout io.Writer) *cobra.Command {
	var rows int
	cmd := &cobra.Command{
		Use:   "inspect [input]",
		Short: "Show the resolved columns and what the first rows would turn into",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rows <= 0 {
				return usagef("--rows must be a positive integer, got %d", rows)
			}
			var ov overrides
			if len(args) == 1 {
				ov.input = args[0]
			}
			cfg, err := loadConfig(cmd, f, ov)
			if err != nil {
				return err
			}
			return inspect(cmd.Context(), cfg, rows, stdout)
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 20, "number of data rows to sample")
	return cmd
}

// inspect decodes the header and up to limit data rows of cfg's input and
// prints the column table and the transform outcome of each sampled row.
// Nothing is written to disk.
func inspect(ctx context.Context, cfg config.Run, limit int, w io.Writer) error {
	rc, err := file.NewLocal(cfg.Input.Path).Open(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", splitter.ErrInputNotFound, err)
		}
		return err
	}
	defer rc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dec := csvparser.NewDecoder(rc, csvparser.Options{
		Comma:        cfg.CommaRune(),
		NoticePrefix: cfg.Input.NoticePrefix,
	})
	items := make(chan csvparser.Item, dec.ReadAhead())
	done := make(chan error, 1)
	go func() {
		defer close(items)
		done <- dec.Stream(ctx, items)
	}()
	defer func() {
		cancel()
		for range items {
		}
		<-done
	}()

	it, ok := <-items
	if !ok {
		return fmt.Errorf("%w: %s has no header line", splitter.ErrConfiguration, cfg.Input.Path)
	}
	if it.Err != nil {
		return fmt.Errorf("%w: %w", splitter.ErrDecode, it.Err)
	}
	header, cols, err := splitter.ResolveHeader(it.Fields, splitter.ColumnNames{
		Value:     cfg.Columns.Value,
		Domain:    cfg.Columns.Domain,
		Secondary: cfg.Columns.Secondary,
		Overflow:  cfg.Columns.Overflow,
	})
	if err != nil {
		return err
	}
	tr, err := transformer.New(cols, transformRules(cfg.Rules))
	if err != nil {
		return fmt.Errorf("%w: %w", splitter.ErrConfiguration, err)
	}

	fmt.Fprintf(w, "input:     %s\n", cfg.Input.Path)
	fmt.Fprintf(w, "columns:   %d\n", len(header))
	for _, c := range []struct {
		role string
		idx  int
	}{
		{"value", cols.Value},
		{"domain", cols.Domain},
		{"secondary", cols.Secondary},
		{"overflow", cols.Overflow},
	} {
		if c.idx == transformer.Absent {
			fmt.Fprintf(w, "  %-10s -\n", c.role)
			continue
		}
		note := ""
		if c.idx >= len(it.Fields) {
			note = " (appended)"
		}
		fmt.Fprintf(w, "  %-10s %q #%d%s\n", c.role, header[c.idx], c.idx+1, note)
	}

	tally := make(map[transformer.Outcome]int)
	derived := 0
	for n := 0; n < limit; n++ {
		it, ok := <-items
		if !ok {
			break
		}
		if it.Err != nil {
			return fmt.Errorf("%w: %w", splitter.ErrDecode, it.Err)
		}
		res := tr.Apply(it.Fields)
		tally[res.Outcome]++
		derived += len(res.Rows)
		line := fmt.Sprintf("line %d: %s", it.Line, res.Outcome)
		if len(res.Rows) > 0 {
			line += fmt.Sprintf(", %d row(s)", len(res.Rows))
		}
		if res.Reason != "" {
			line += " (" + res.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "sampled: emitted=%d excluded=%d no_value=%d filtered=%d derived_rows=%d\n",
		tally[transformer.Emitted], tally[transformer.Excluded], tally[transformer.NoValue],
		tally[transformer.Filtered], derived)
	return nil
}
