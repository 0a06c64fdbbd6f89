package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"csvsplit/internal/config"
	"csvsplit/internal/datasource/file"
	"csvsplit/internal/ledger"
	"csvsplit/internal/metrics"
	"csvsplit/internal/metrics/datadog"
	"csvsplit/internal/metrics/prompush"
	"csvsplit/internal/publish"
	"csvsplit/internal/shard"
	"csvsplit/internal/splitter"
	"csvsplit/internal/storage"
	"csvsplit/internal/transformer"
)

// finishTimeout bounds the ledger and publish steps once the split is over,
// so they still run after an interrupt cancelled the split itself.
const finishTimeout = 2 * time.Minute

func readKeywords(path string) ([]string, error) {
	kws, err := file.ReadList(path)
	if err != nil {
		return nil, err
	}
	if len(kws) == 0 {
		return nil, fmt.Errorf("block keywords file %s has no entries", path)
	}
	return kws, nil
}

func run(ctx context.Context, cmd *cobra.Command, f *flags, ov overrides, stdout, stderr io.Writer) error {
	return withRun(cmd, f, ov, stdout, stderr, func(cfg config.Run, log *zap.Logger) error {
		_, err := split(ctx, cfg, log, stdout)
		return err
	})
}

// withRun resolves and validates the configuration, then calls fn with the
// run logger and the metrics backend installed. With --validate it stops
// after validation.
func withRun(cmd *cobra.Command, f *flags, ov overrides, stdout, stderr io.Writer, fn func(config.Run, *zap.Logger) error) error {
	cfg, err := loadConfig(cmd, f, ov)
	if err != nil {
		return err
	}

	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return usagef("configuration is invalid")
	}
	if f.validate {
		fmt.Fprintln(stdout, "configuration is valid")
		return nil
	}

	log, err := buildLogger(cfg.Log)
	if err != nil {
		return usagef("init logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	flush := setupMetrics(cfg.Metrics, log)
	defer flush()

	return fn(cfg, log)
}

// split runs one input through the engine, then prints the summary and runs
// the ledger and publish steps. The summary is nil when the run never started.
func split(ctx context.Context, cfg config.Run, log *zap.Logger, stdout io.Writer) (*splitter.Summary, error) {
	mode, err := splitter.ParseMode(cfg.Split.Mode)
	if err != nil {
		return nil, usageError{err}
	}
	comp, err := shard.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return nil, usageError{err}
	}

	runID := ledger.NewRunID()
	log = log.With(zap.String("run_id", runID))

	eng, err := splitter.New(splitter.Options{
		Source:    file.NewLocal(cfg.Input.Path),
		OutputDir: cfg.OutputDir(time.Now()),
		BaseName:  cfg.Output.BaseName,
		Mode:      mode,
		ChunkSize: cfg.Split.ChunkSize,
		Start:     cfg.Split.Start,
		End:       cfg.Split.End,
		Batch:     cfg.Split.Batch,
		Columns: splitter.ColumnNames{
			Value:     cfg.Columns.Value,
			Domain:    cfg.Columns.Domain,
			Secondary: cfg.Columns.Secondary,
			Overflow:  cfg.Columns.Overflow,
		},
		Rules:        transformRules(cfg.Rules),
		Exact:        true,
		NoticePrefix: cfg.Input.NoticePrefix,
		Comma:        cfg.CommaRune(),
		ReadAhead:    cfg.Input.ReadAhead,
		HighWater:    cfg.Output.HighWater,
		Compression:  comp,
		Dedupe:       cfg.Dedupe.Enabled,
		DedupeWindow: cfg.Dedupe.Window,
		SampleLimit:  cfg.Rules.SampleLimit,
		RunID:        runID,
		Logger:       log,
		OnShard: func(info shard.Info) {
			log.Debug("shard ready", zap.Int("index", info.Index), zap.String("path", info.Path))
		},
	})
	if err != nil {
		return nil, err
	}

	// The ledger is opened up front so a bad DSN fails before any shard is
	// written.
	var led *ledger.Ledger
	if cfg.Ledger.Kind != "" {
		led, err = ledger.Open(ctx, storage.Config{Kind: cfg.Ledger.Kind, DSN: cfg.Ledger.DSN}, log)
		if err != nil {
			return nil, err
		}
		defer led.Close()
	}

	sum, runErr := eng.Run(ctx)
	if sum == nil {
		return nil, runErr
	}

	if err := sum.WriteText(stdout); err != nil {
		log.Warn("print summary", zap.Error(err))
	}
	if cfg.Output.SummaryFile != "" {
		if err := sum.WriteFile(cfg.Output.SummaryFile); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("write summary file: %w", err))
		}
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if led != nil {
		if err := led.Record(fctx, sum, runErr); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	if runErr == nil && cfg.Publish.Enabled() {
		if err := publishRun(fctx, cfg.Publish, sum, log); err != nil {
			return sum, err
		}
	}
	return sum, runErr
}

func transformRules(r config.Rules) transformer.Rules {
	return transformer.Rules{
		Delimiter:       r.Delimiter,
		ExcludeMarkers:  r.ExcludeMarkers,
		BlockKeywords:   r.BlockKeywords,
		SecondaryPrefix: r.SecondaryPrefix,
	}
}

func publishRun(ctx context.Context, pc config.Publish, sum *splitter.Summary, log *zap.Logger) error {
	store, err := publish.NewS3Store(publish.S3Config{
		Endpoint:  pc.Endpoint,
		Region:    pc.Region,
		AccessKey: pc.AccessKey,
		SecretKey: pc.SecretKey,
		Bucket:    pc.Bucket,
		UseSSL:    pc.Secure,
	})
	if err != nil {
		return err
	}
	_, err = publish.New(store, pc.Prefix, log).Publish(ctx, sum)
	return err
}

func buildLogger(lc config.Log) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	lvl := zapcore.InfoLevel
	if lc.Level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(lc.Level))); err != nil {
			lvl = zapcore.InfoLevel
		}
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// setupMetrics installs the configured backend and returns the flush to run
// at exit. A backend that cannot be built is logged and metrics stay off.
func setupMetrics(mc config.Metrics, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch mc.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(mc.Job, mc.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: mc.DatadogAddr, Namespace: mc.Namespace, GlobalTags: mc.Tags})
	default:
		metrics.SetBackend(metrics.Nop())
		log.Debug("metrics disabled", zap.String("backend", mc.Backend))
		return func() {}
	}
	if err != nil {
		metrics.SetBackend(metrics.Nop())
		log.Warn("metrics backend unavailable; metrics disabled", zap.String("backend", mc.Backend), zap.Error(err))
		return func() {}
	}
	metrics.SetBackend(b)
	log.Info("metrics enabled", zap.String("backend", mc.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", zap.Error(err))
		}
	}
}
