// Package config defines the run configuration for csvsplit and how it is
// assembled from a config file, the environment and defaults.
//
// Precedence, highest first: command-line flags (applied by the command),
// environment variables (optionally loaded from a .env file), the config
// file, built-in defaults. Files are JSON (.json) or YAML (.yaml, .yml):
//
//	input:  { path: uploads/main_file.csv }
//	split:  { mode: ranged, start: 10, end: 20, batch: 5 }
//	rules:  { block_keywords: [support, noreply] }
//	ledger: { kind: sqlite, dsn: runs.db }
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables recognized by ApplyEnv.
const (
	EnvInputPath      = "CSV_INPUT_PATH"
	EnvOutputDir      = "CSV_OUTPUT_DIR"
	EnvSplitSize      = "CSV_SPLIT_SIZE"
	EnvLedgerDSN      = "CSVSPLIT_LEDGER_DSN"
	EnvPublishAccess  = "CSVSPLIT_PUBLISH_ACCESS_KEY"
	EnvPublishSecret  = "CSVSPLIT_PUBLISH_SECRET_KEY"
	EnvPushgatewayURL = "CSVSPLIT_PUSHGATEWAY_URL"
	EnvDatadogAddr    = "DD_DOGSTATSD_URL"
)

const (
	DefaultInputPath   = "uploads/main_file.csv"
	DefaultSplitsRoot  = "uploads/splits"
	DefaultChunkSize   = 100_000
	DefaultSampleLimit = 5
)

// Run is the complete configuration of one split run.
type Run struct {
	Input   Input   `json:"input" yaml:"input"`
	Output  Output  `json:"output" yaml:"output"`
	Split   Split   `json:"split" yaml:"split"`
	Columns Columns `json:"columns" yaml:"columns"`
	Rules   Rules   `json:"rules" yaml:"rules"`
	Dedupe  Dedupe  `json:"dedupe" yaml:"dedupe"`
	Ledger  Ledger  `json:"ledger" yaml:"ledger"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
	Publish Publish `json:"publish" yaml:"publish"`
	Log     Log     `json:"log" yaml:"log"`
}

// Input describes the export being split.
type Input struct {
	Path string `json:"path" yaml:"path"`
	// NoticePrefix identifies an optional marker line above the header.
	NoticePrefix string `json:"notice_prefix" yaml:"notice_prefix"`
	// Comma is the field delimiter, a single character.
	Comma     string `json:"comma" yaml:"comma"`
	ReadAhead int    `json:"read_ahead" yaml:"read_ahead"`
}

// Output describes where and how shards are written.
type Output struct {
	// Dir defaults to uploads/splits/<base>_<yyyymmddhhMMss>.
	Dir         string `json:"dir" yaml:"dir"`
	BaseName    string `json:"base_name" yaml:"base_name"`
	Compression string `json:"compression" yaml:"compression"`
	HighWater   int    `json:"high_water" yaml:"high_water"`
	SummaryFile string `json:"summary_file" yaml:"summary_file"`
}

// Split selects the run mode.
type Split struct {
	Mode      string `json:"mode" yaml:"mode"`
	ChunkSize int    `json:"chunk_size" yaml:"chunk_size"`
	Start     int64  `json:"start" yaml:"start"`
	End       int64  `json:"end" yaml:"end"`
	Batch     int    `json:"batch" yaml:"batch"`
}

// Columns are the header names looked up in the input.
type Columns struct {
	Value     string `json:"value" yaml:"value"`
	Domain    string `json:"domain" yaml:"domain"`
	Secondary string `json:"secondary" yaml:"secondary"`
	Overflow  string `json:"overflow" yaml:"overflow"`
}

// Rules configure the row transform.
type Rules struct {
	Delimiter      string   `json:"delimiter" yaml:"delimiter"`
	ExcludeMarkers []string `json:"exclude_markers" yaml:"exclude_markers"`
	BlockKeywords  []string `json:"block_keywords" yaml:"block_keywords"`
	// BlockKeywordsFile, when set, replaces BlockKeywords with the file's
	// non-empty, non-comment lines.
	BlockKeywordsFile string `json:"block_keywords_file" yaml:"block_keywords_file"`
	SecondaryPrefix   string `json:"secondary_prefix" yaml:"secondary_prefix"`
	SampleLimit       int    `json:"sample_limit" yaml:"sample_limit"`
}

// Dedupe configures cross-run value de-duplication.
type Dedupe struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Window  int  `json:"window" yaml:"window"`
}

// Ledger selects the database that records runs and shards.
type Ledger struct {
	Kind string `json:"kind" yaml:"kind"` // "", sqlite, postgres, mssql, mysql
	DSN  string `json:"dsn" yaml:"dsn"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string   `json:"backend" yaml:"backend"` // "", none, pushgateway, datadog
	Job            string   `json:"job" yaml:"job"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	DatadogAddr    string   `json:"datadog_addr" yaml:"datadog_addr"`
	Namespace      string   `json:"namespace" yaml:"namespace"`
	Tags           []string `json:"tags" yaml:"tags"`
}

// Publish configures upload of closed shards to an S3-compatible bucket.
type Publish struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket"`
	Region    string `json:"region" yaml:"region"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	Secure    bool   `json:"secure" yaml:"secure"`
	Prefix    string `json:"prefix" yaml:"prefix"`
}

// Enabled reports whether publishing was requested.
func (p Publish) Enabled() bool { return strings.TrimSpace(p.Bucket) != "" }

// Log configures the logger.
type Log struct {
	Level       string `json:"level" yaml:"level"` // debug, info, warn, error
	Development bool   `json:"development" yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Run {
	return Run{
		Input: Input{
			Path:         DefaultInputPath,
			NoticePrefix: "notice:",
			Comma:        ",",
			ReadAhead:    64,
		},
		Output: Output{HighWater: 256 << 10},
		Split:  Split{Mode: "full", ChunkSize: DefaultChunkSize},
		Columns: Columns{
			Value:     "work email",
			Domain:    "domain",
			Secondary: "phone numbers",
			Overflow:  "other phone numbers",
		},
		Rules: Rules{
			Delimiter:      ";",
			ExcludeMarkers: []string{".gov", ".edu"},
			BlockKeywords: []string{
				"support", "noreply", "no-reply", "donotreply", "do-not-reply",
				"info@", "admin@", "sales@", "help@", "contact@",
				"webmaster", "postmaster", "abuse@", "privacy@",
				"careers@", "jobs@", "hr@",
			},
			SecondaryPrefix: "tel:",
			SampleLimit:     DefaultSampleLimit,
		},
		Dedupe:  Dedupe{Window: 1_000_000},
		Metrics: Metrics{Job: "csvsplit"},
		Log:     Log{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Run, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return cfg, fmt.Errorf("config %s: unsupported extension (want .json, .yaml or .yml)", path)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment values read through getenv (os.Getenv in
// production). CSV_SPLIT_SIZE sets the chunk size in full mode and the batch
// size in ranged mode.
func (r *Run) ApplyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvInputPath)); v != "" {
		r.Input.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvOutputDir)); v != "" {
		r.Output.Dir = v
	}
	if v := strings.TrimSpace(getenv(EnvSplitSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", EnvSplitSize, v)
		}
		if r.Split.Mode == "ranged" {
			r.Split.Batch = n
		} else {
			r.Split.ChunkSize = n
		}
	}
	if v := getenv(EnvLedgerDSN); v != "" {
		r.Ledger.DSN = v
	}
	if v := getenv(EnvPublishAccess); v != "" {
		r.Publish.AccessKey = v
	}
	if v := getenv(EnvPublishSecret); v != "" {
		r.Publish.SecretKey = v
	}
	if v := getenv(EnvPushgatewayURL); v != "" {
		r.Metrics.PushgatewayURL = v
	}
	if v := getenv(EnvDatadogAddr); v != "" {
		r.Metrics.DatadogAddr = v
	}
	return nil
}

// BaseName is the shard file prefix: Output.BaseName or the input file name
// without its extension.
func (r Run) BaseName() string {
	if r.Output.BaseName != "" {
		return r.Output.BaseName
	}
	name := filepath.Base(r.Input.Path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// OutputDir returns Output.Dir, or the timestamped default under
// uploads/splits when it is empty.
func (r Run) OutputDir(now time.Time) string {
	if r.Output.Dir != "" {
		return r.Output.Dir
	}
	return filepath.Join(DefaultSplitsRoot, r.BaseName()+"_"+now.UTC().Format("20060102150405"))
}

// CommaRune returns the configured field delimiter.
func (r Run) CommaRune() rune {
	rs := []rune(r.Input.Comma)
	if len(rs) == 0 {
		return ','
	}
	return rs[0]
}
