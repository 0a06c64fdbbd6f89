// Package splitter is the streaming split engine: it turns the decoded record
// stream of one contact export into an ordered sequence of shard files.
//
// A run has two goroutines under one errgroup. The decoder produces records
// into a bounded channel; the engine consumes them strictly one at a time,
// resolves the header from the first record, transforms every data row and
// feeds the derived rows to the shard writer. Writer backpressure and shard
// rotation pause the decoder until the writer has flushed (see flow).
//
// In Ranged mode only data rows [Start, End] are transformed. The engine
// stops as soon as row End has been handled, so nothing after the range
// reaches the transformer, not even a malformed line.
package splitter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"csvsplit/internal/datasource"
	"csvsplit/internal/metrics"
	csvparser "csvsplit/internal/parser/csv"
	"csvsplit/internal/shard"
	"csvsplit/internal/transformer"
	"csvsplit/internal/transformer/builtin"
)

// DefaultChunkSize is the shard capacity used when none is configured.
const DefaultChunkSize = 100_000

// logEveryN is the progress heartbeat interval in data rows.
const logEveryN = 50_000

// Options configures one run.
type Options struct {
	Source    datasource.Source
	OutputDir string
	// BaseName prefixes every shard file; defaults to the input file name
	// without extension.
	BaseName string

	Mode Mode
	// ChunkSize is the shard capacity in Full mode; must be > 0.
	ChunkSize int
	// Start and End bound Ranged mode (1-based, inclusive). Batch is the
	// optional shard capacity there; 0 writes the whole range to one shard.
	Start int64
	End   int64
	Batch int

	Columns ColumnNames
	Rules   transformer.Rules
	// Exact uses Columns and Rules as given. Otherwise every empty field is
	// filled from DefaultColumnNames and transformer.DefaultRules, and a rule
	// can only be switched off by setting Exact.
	Exact bool

	NoticePrefix string
	Comma        rune
	ReadAhead    int
	HighWater    int
	Compression  shard.Compression

	Dedupe       bool
	DedupeWindow int

	// SampleLimit is how many examples per drop reason are logged.
	SampleLimit int

	RunID  string
	Logger *zap.Logger

	// OnShard is called on the engine goroutine after every shard closes.
	OnShard func(shard.Info)
}

// Engine runs one split. An Engine is single use.
type Engine struct {
	opt Options
	log *zap.Logger
}

// New validates opt. Every validation failure wraps ErrConfiguration.
func New(opt Options) (*Engine, error) {
	if opt.Source == nil {
		return nil, fmt.Errorf("%w: no input source", ErrConfiguration)
	}
	if strings.TrimSpace(opt.OutputDir) == "" {
		return nil, fmt.Errorf("%w: output directory is required", ErrConfiguration)
	}
	if opt.Mode == "" {
		opt.Mode = Full
	}
	switch opt.Mode {
	case Full:
		if opt.ChunkSize <= 0 {
			return nil, fmt.Errorf("%w: chunk size must be a positive integer, got %d", ErrConfiguration, opt.ChunkSize)
		}
	case Ranged:
		if opt.Start < 1 || opt.End < opt.Start {
			return nil, fmt.Errorf("%w: invalid range [%d,%d]: need 1 <= start <= end", ErrConfiguration, opt.Start, opt.End)
		}
		if opt.Batch < 0 {
			return nil, fmt.Errorf("%w: batch size must be a positive integer, got %d", ErrConfiguration, opt.Batch)
		}
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrConfiguration, opt.Mode)
	}
	if !opt.Exact {
		opt.Columns = opt.Columns.WithDefaults()
		opt.Rules = opt.Rules.WithDefaults()
	}
	if strings.TrimSpace(opt.Columns.Value) == "" {
		return nil, fmt.Errorf("%w: value column name is required", ErrConfiguration)
	}
	if opt.Rules.Delimiter == "" {
		opt.Rules.Delimiter = transformer.DefaultRules().Delimiter
	}
	if opt.BaseName == "" {
		name := filepath.Base(opt.Source.Name())
		opt.BaseName = strings.TrimSuffix(name, filepath.Ext(name))
	}
	if opt.SampleLimit <= 0 {
		opt.SampleLimit = 5
	}
	lg := opt.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	if opt.RunID != "" {
		lg = lg.With(zap.String("run_id", opt.RunID))
	}
	return &Engine{opt: opt, log: lg.Named("splitter")}, nil
}

// capacity is the shard row capacity for the configured mode.
func (e *Engine) capacity() int {
	if e.opt.Mode == Ranged {
		return e.opt.Batch
	}
	return e.opt.ChunkSize
}

// Run executes the split. The returned Summary is non-nil whenever the input
// was opened, including on decode and write failures, and reflects the work
// done up to that point.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	opt := e.opt

	rc, err := opt.Source.Open(ctx)
	metrics.RecordStep(opt.RunID, "open", err, time.Since(started))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrInputNotFound, err)
		}
		return nil, fmt.Errorf("open input: %w", err)
	}

	dec := csvparser.NewDecoder(rc, csvparser.Options{
		Comma:        opt.Comma,
		NoticePrefix: opt.NoticePrefix,
		ReadAhead:    opt.ReadAhead,
		Logger:       e.log,
	})
	items := make(chan csvparser.Item, dec.ReadAhead())

	st := &RunState{Mode: opt.Mode, Start: opt.Start, End: opt.End}
	c := &consumer{e: e, st: st, dec: dec, drops: newDropSampler(opt.SampleLimit)}

	g, gctx := errgroup.WithContext(ctx)
	sctx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer close(items)
		defer rc.Close()
		err := dec.Stream(sctx, items)
		if err != nil && ctx.Err() == nil {
			// stopped by the consumer: its result is the run's result
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stop()
		return c.run(gctx, items)
	})
	err = g.Wait()

	if c.w != nil {
		st.Shards = int64(len(c.w.Shards()))
	}
	e.report(st, c, err)
	sum := e.summary(st, c, started)
	metrics.RecordStep(opt.RunID, "split", err, time.Since(started))
	return sum, err
}

// consumer is the engine goroutine state for one run.
type consumer struct {
	e     *Engine
	st    *RunState
	dec   *csvparser.Decoder
	drops *dropSampler

	header []string
	tr     *transformer.Transformer
	w      *shard.Writer
	fl     *flow
}

func (c *consumer) run(ctx context.Context, items <-chan csvparser.Item) (err error) {
	defer func() {
		if c.fl == nil {
			return
		}
		if cerr := c.fl.closeShard(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	name := c.e.opt.Source.Name()
	for {
		var it csvparser.Item
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it, ok = <-items:
		}
		if !ok {
			if c.header == nil {
				return fmt.Errorf("%w: %s has no header line", ErrConfiguration, name)
			}
			c.st.Finished = true
			return nil
		}
		if it.Err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDecode, name, it.Err)
		}

		if c.header == nil {
			if err := c.start(it.Fields); err != nil {
				return err
			}
			continue
		}

		c.st.Index++
		before, after := c.st.inRange()
		if before {
			c.st.Skipped++
			continue
		}
		if after {
			c.st.Finished = true
			return nil
		}

		if err := c.handle(it.Record); err != nil {
			return err
		}
		if c.st.Index%logEveryN == 0 {
			c.e.log.Info("progress",
				zap.Int64("rows", c.st.Index),
				zap.Int64("written", c.st.Written),
				zap.Int64("shards", int64(len(c.w.Shards()))),
			)
		}
		if c.st.atEnd() {
			c.st.Finished = true
			return nil
		}
	}
}

// start resolves the header and builds the per-run transformer and writer.
func (c *consumer) start(rec []string) error {
	opt := c.e.opt
	header, cols, err := ResolveHeader(rec, opt.Columns)
	if err != nil {
		return err
	}

	var topts []transformer.Option
	if opt.Dedupe {
		d, err := builtin.NewDedup(opt.DedupeWindow)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		topts = append(topts, transformer.WithDedup(d))
	}
	tr, err := transformer.New(cols, opt.Rules, topts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	w, err := shard.NewWriter(shard.Options{
		Dir:         opt.OutputDir,
		BaseName:    opt.BaseName,
		Capacity:    c.e.capacity(),
		Compression: opt.Compression,
		HighWater:   opt.HighWater,
		Logger:      c.e.log,
	}, header)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	c.header, c.tr, c.w = header, tr, w
	c.fl = &flow{src: c.dec, w: w, log: c.e.log, onShard: opt.OnShard}
	c.e.log.Debug("header resolved",
		zap.Strings("header", header),
		zap.Int("value", cols.Value),
		zap.Int("domain", cols.Domain),
		zap.Int("secondary", cols.Secondary),
		zap.Int("overflow", cols.Overflow),
	)
	return nil
}

// handle transforms one in-range data row and writes what it yields.
func (c *consumer) handle(rec csvparser.Record) error {
	res := c.tr.Apply(rec.Fields)
	c.st.Filtered += int64(res.Filtered)
	c.st.Duplicates += int64(res.Duplicates)

	switch res.Outcome {
	case transformer.Excluded:
		c.st.Excluded++
		c.drops.add(res.Outcome.String(), rec.Line, res.Reason)
		return nil
	case transformer.NoValue:
		c.st.Scanned++
		c.st.WithoutValue++
		c.drops.add(res.Outcome.String(), rec.Line, res.Reason)
		return nil
	case transformer.Filtered:
		c.st.Scanned++
		c.drops.add(res.Outcome.String(), rec.Line, res.Reason)
		return nil
	}

	c.st.Scanned++
	for _, row := range res.Rows {
		if err := c.fl.write(row); err != nil {
			return err
		}
		c.st.Written++
	}
	return nil
}

func (e *Engine) report(st *RunState, c *consumer, err error) {
	run := e.opt.RunID
	for kind, n := range map[string]int64{
		"scanned":       st.Scanned,
		"without_value": st.WithoutValue,
		"written":       st.Written,
		"excluded":      st.Excluded,
		"filtered":      st.Filtered,
		"duplicates":    st.Duplicates,
		"skipped":       st.Skipped,
	} {
		metrics.RecordRecords(run, kind, n)
	}
	metrics.RecordShards(run, st.Shards)

	c.drops.log(e.log)
	fields := []zap.Field{
		zap.String("mode", string(st.Mode)),
		zap.Int64("scanned", st.Scanned),
		zap.Int64("without_value", st.WithoutValue),
		zap.Int64("written", st.Written),
		zap.Int64("shards", st.Shards),
		zap.Int64("excluded", st.Excluded),
		zap.Int64("filtered", st.Filtered),
	}
	if c.fl != nil {
		fields = append(fields, zap.Int64("pauses", c.fl.pauses))
	}
	if err != nil {
		e.log.Error("split failed", append(fields, zap.Error(err))...)
		return
	}
	e.log.Info("split finished", fields...)
}
