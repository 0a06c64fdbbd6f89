package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"csvsplit/internal/config"
)

// flags holds every command-line override. A flag only wins over env and
// file values when it was set explicitly.
type flags struct {
	configPath  string
	envFile     string
	out         string
	baseName    string
	compress    string
	dedupe      bool
	keywords    string
	summaryFile string
	validate    bool
	verbose     bool

	batch    int
	rangeArg string

	ledgerKind string
	ledgerDSN  string

	metricsBackend string
	pushgatewayURL string
	datadogAddr    string

	publishEndpoint string
	publishBucket   string
	publishPrefix   string
	publishRegion   string
	publishSecure   bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "csvsplit",
		Short:         "Split contact exports into fixed-size CSV shards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "config file (.json, .yaml or .yml)")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&f.out, "out", "", "output directory (default uploads/splits/<base>_<timestamp>)")
	pf.StringVar(&f.baseName, "base-name", "", "shard file prefix (default input file name)")
	pf.StringVar(&f.compress, "compress", "", "shard compression: none or zstd")
	pf.BoolVar(&f.dedupe, "dedupe", false, "drop values already written earlier in the run")
	pf.StringVar(&f.keywords, "block-keywords-file", "", "file of block keywords, one per line")
	pf.StringVar(&f.summaryFile, "summary-file", "", "also write the run summary as JSON to this path")
	pf.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logs")

	pf.StringVar(&f.ledgerKind, "ledger-kind", "", "record runs in a database: sqlite, postgres, mssql or mysql")
	pf.StringVar(&f.ledgerDSN, "ledger-dsn", "", "ledger connection string")

	pf.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: none, pushgateway or datadog")
	pf.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	pf.StringVar(&f.datadogAddr, "datadog-addr", "", "DogStatsD address, e.g. 127.0.0.1:8125")

	pf.StringVar(&f.publishEndpoint, "publish-endpoint", "", "S3-compatible endpoint host[:port]")
	pf.StringVar(&f.publishBucket, "publish-bucket", "", "bucket to upload shards to; enables publishing")
	pf.StringVar(&f.publishPrefix, "publish-prefix", "", "object key prefix")
	pf.StringVar(&f.publishRegion, "publish-region", "", "bucket region")
	pf.BoolVar(&f.publishSecure, "publish-secure", false, "use TLS for the object store")

	root.AddCommand(
		newSplitCmd(&f, stdout, stderr),
		newRangeCmd(&f, stdout, stderr),
		newBatchCmd(&f, stdout, stderr),
		newInspectCmd(&f, stdout),
	)
	return root
}

func newSplitCmd(f *flags, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [input]",
		Short: "Split a whole export, or a row range with --range",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ov overrides
			if len(args) == 1 {
				ov.input = args[0]
			}
			if cmd.Flags().Changed("range") {
				start, end, err := parseRange(f.rangeArg)
				if err != nil {
					return err
				}
				ov.ranged, ov.start, ov.end = true, start, end
			}
			if cmd.Flags().Changed("batch") {
				if f.batch <= 0 {
					return usagef("--batch must be a positive integer, got %d", f.batch)
				}
				ov.batch = f.batch
			}
			return run(cmd.Context(), cmd, f, ov, stdout, stderr)
		},
	}
	cmd.Flags().IntVar(&f.batch, "batch", 0, "rows per shard (chunk size; batch size with --range)")
	cmd.Flags().StringVar(&f.rangeArg, "range", "", "split only data rows START:END (1-based, inclusive)")
	return cmd
}

func newRangeCmd(f *flags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "range <input> <start> <end> [batch]",
		Short: "Split data rows start..end (1-based, inclusive)",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(3, 4)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := overrides{input: args[0], ranged: true}
			var err error
			if ov.start, err = positiveInt(args[1], "start"); err != nil {
				return err
			}
			if ov.end, err = positiveInt(args[2], "end"); err != nil {
				return err
			}
			if ov.end < ov.start {
				return usagef("end (%d) must be >= start (%d)", ov.end, ov.start)
			}
			if len(args) == 4 {
				b, err := positiveInt(args[3], "batch")
				if err != nil {
					return err
				}
				ov.batch = int(b)
			}
			return run(cmd.Context(), cmd, f, ov, stdout, stderr)
		},
	}
}

// overrides are the values a command derives from its arguments.
type overrides struct {
	input      string
	ranged     bool
	start, end int64
	batch      int
}

func parseRange(s string) (start, end int64, err error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, usagef("--range must look like START:END, got %q", s)
	}
	if start, err = positiveInt(a, "range start"); err != nil {
		return 0, 0, err
	}
	if end, err = positiveInt(b, "range end"); err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, usagef("range end (%d) must be >= start (%d)", end, start)
	}
	return start, end, nil
}

func positiveInt(s, what string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 1 {
		return 0, usagef("%s must be a positive integer, got %q", what, s)
	}
	return n, nil
}

// loadConfig resolves the run configuration: defaults, then the config file,
// then .env and the environment, then explicit flags and arguments.
func loadConfig(cmd *cobra.Command, f *flags, ov overrides) (config.Run, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, usageError{err}
	}
	if ov.ranged {
		cfg.Split.Mode = "ranged"
	}
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return cfg, usageError{err}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, usageError{err}
	}

	if ov.input != "" {
		cfg.Input.Path = ov.input
	}
	if ov.ranged {
		cfg.Split.Start, cfg.Split.End = ov.start, ov.end
	}
	if ov.batch > 0 {
		if cfg.Split.Mode == "ranged" {
			cfg.Split.Batch = ov.batch
		} else {
			cfg.Split.ChunkSize = ov.batch
		}
	}

	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	setString("out", &cfg.Output.Dir, f.out)
	setString("base-name", &cfg.Output.BaseName, f.baseName)
	setString("compress", &cfg.Output.Compression, f.compress)
	setString("summary-file", &cfg.Output.SummaryFile, f.summaryFile)
	setString("block-keywords-file", &cfg.Rules.BlockKeywordsFile, f.keywords)
	setString("ledger-kind", &cfg.Ledger.Kind, f.ledgerKind)
	setString("ledger-dsn", &cfg.Ledger.DSN, f.ledgerDSN)
	setString("metrics-backend", &cfg.Metrics.Backend, f.metricsBackend)
	setString("pushgateway-url", &cfg.Metrics.PushgatewayURL, f.pushgatewayURL)
	setString("datadog-addr", &cfg.Metrics.DatadogAddr, f.datadogAddr)
	setString("publish-endpoint", &cfg.Publish.Endpoint, f.publishEndpoint)
	setString("publish-bucket", &cfg.Publish.Bucket, f.publishBucket)
	setString("publish-prefix", &cfg.Publish.Prefix, f.publishPrefix)
	setString("publish-region", &cfg.Publish.Region, f.publishRegion)
	if changed("dedupe") {
		cfg.Dedupe.Enabled = f.dedupe
	}
	if changed("publish-secure") {
		cfg.Publish.Secure = f.publishSecure
	}
	if f.verbose {
		cfg.Log.Level = "debug"
	}

	if cfg.Rules.BlockKeywordsFile != "" {
		kws, err := readKeywords(cfg.Rules.BlockKeywordsFile)
		if err != nil {
			return cfg, usageError{err}
		}
		cfg.Rules.BlockKeywords = kws
	}
	return cfg, nil
}

// execute runs the CLI with args and returns the process exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && isCobraUsage(err) {
		err = usageError{err}
	}
	report(stderr, err)
	return exitCode(err)
}

// isCobraUsage recognizes the argument errors cobra produces itself, such as
// unknown commands.
func isCobraUsage(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "accepts ") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag")
}
