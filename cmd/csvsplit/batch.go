package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvsplit/internal/config"
	"csvsplit/internal/splitter"
)

func newBatchCmd(f *flags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <root> [batch]",
		Short: "Split every .csv file under root, one after another",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 2)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var ov overrides
			if len(args) == 2 {
				b, err := positiveInt(args[1], "batch")
				if err != nil {
					return err
				}
				ov.batch = int(b)
			}
			root := args[0]
			return withRun(cmd, f, ov, stdout, stderr, func(cfg config.Run, log *zap.Logger) error {
				return runBatch(cmd.Context(), root, cfg, log, stdout)
			})
		},
	}
}

type batchFile struct {
	Input     string `json:"input"`
	OutputDir string `json:"output_dir"`
	RunID     string `json:"run_id,omitempty"`
	Shards    int64  `json:"shards"`
	Written   int64  `json:"rows_written"`
	Error     string `json:"error,omitempty"`
}

type batchReport struct {
	Root      string        `json:"root"`
	OutputDir string        `json:"output_dir"`
	Found     int           `json:"files_found"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Files     []batchFile   `json:"files"`
}

func (r *batchReport) writeText(w io.Writer) {
	fmt.Fprintf(w, "\n=== Batch Summary ===\n")
	fmt.Fprintf(w, "root: %s\n", r.Root)
	fmt.Fprintf(w, "outputDir: %s\n", r.OutputDir)
	fmt.Fprintf(w, "filesFound: %d\n", r.Found)
	fmt.Fprintf(w, "succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(w, "failed: %d\n", r.Failed)
	fmt.Fprintf(w, "elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "=====================\n\n")
}

// runBatch splits every .csv under root in lexical order with the shared
// configuration. Each input gets its own directory below the batch output
// directory, mirroring its path relative to root. A failed input is
// reported and the batch moves on; the batch fails when any input did.
func runBatch(ctx context.Context, root string, cfg config.Run, log *zap.Logger, stdout io.Writer) error {
	started := time.Now()
	st, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", splitter.ErrInputNotFound, err)
		}
		return err
	}
	if !st.IsDir() {
		return usagef("batch root %s is not a directory", root)
	}

	outRoot := cfg.Output.Dir
	if outRoot == "" {
		outRoot = filepath.Join(config.DefaultSplitsRoot, "batch_"+started.UTC().Format("20060102150405"))
	}
	inputs, err := findCSVs(root, outRoot)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	rep := &batchReport{Root: root, OutputDir: outRoot, Found: len(inputs)}
	log.Info("batch started", zap.String("root", root), zap.Int("files", len(inputs)))
	if len(inputs) == 0 {
		fmt.Fprintf(stdout, "no .csv files found under %s\n", root)
	}

	for i, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		rel, _ := filepath.Rel(root, in)
		fmt.Fprintf(stdout, "[%d/%d] %s\n", i+1, len(inputs), rel)

		fc := cfg
		fc.Input.Path = in
		fc.Output.Dir = filepath.Join(outRoot, strings.TrimSuffix(rel, filepath.Ext(rel)))
		fc.Output.SummaryFile = ""

		sum, err := split(ctx, fc, log.With(zap.String("input", in)), stdout)
		bf := batchFile{Input: in, OutputDir: fc.Output.Dir}
		if sum != nil {
			bf.RunID, bf.Shards, bf.Written = sum.RunID, sum.Shards, sum.Written
		}
		if err != nil {
			rep.Failed++
			bf.Error = err.Error()
			log.Error("batch input failed", zap.String("input", in), zap.Error(err))
			fmt.Fprintf(stdout, "failed: %s: %v\n", rel, err)
		} else {
			rep.Succeeded++
		}
		rep.Files = append(rep.Files, bf)
	}
	rep.Elapsed = time.Since(started)
	rep.writeText(stdout)

	var errs []error
	if cfg.Output.SummaryFile != "" {
		if err := writeBatchReport(cfg.Output.SummaryFile, rep); err != nil {
			errs = append(errs, err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if rep.Failed > 0 {
		errs = append(errs, fmt.Errorf("%d of %d files failed", rep.Failed, rep.Found))
	}
	return errors.Join(errs...)
}

// findCSVs lists the .csv files under root, skipping outRoot when it lies
// inside root so earlier shards are never picked up as inputs.
func findCSVs(root, outRoot string) ([]string, error) {
	skip, _ := filepath.Abs(outRoot)
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(p); abs == skip {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".csv") {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

func writeBatchReport(path string, rep *batchReport) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write batch report: %w", err)
	}
	return nil
}
