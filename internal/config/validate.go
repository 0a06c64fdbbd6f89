package config

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the config (e.g. "split.chunk_size").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over r without mutating it.
func (r Run) Validate() []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(r.Input.Path) == "" {
		add(SeverityError, "input.path", "input path must not be empty")
	}
	if c := r.Input.Comma; c != "" {
		ch, _ := utf8.DecodeRuneInString(c)
		switch {
		case utf8.RuneCountInString(c) != 1:
			add(SeverityError, "input.comma", "delimiter must be a single character, got %q", c)
		case ch == '"' || ch == '\r' || ch == '\n' || ch == utf8.RuneError:
			add(SeverityError, "input.comma", "invalid delimiter %q", c)
		}
	}
	if r.Input.ReadAhead < 0 {
		add(SeverityError, "input.read_ahead", "must not be negative")
	}

	issues = append(issues, r.validateSplit()...)

	if strings.TrimSpace(r.Columns.Value) == "" {
		add(SeverityError, "columns.value", "value column name is required")
	}
	if strings.TrimSpace(r.Columns.Secondary) != "" && strings.TrimSpace(r.Columns.Overflow) == "" {
		add(SeverityError, "columns.overflow", "overflow column name is required when a secondary column is configured")
	}

	if r.Rules.Delimiter == "" {
		add(SeverityError, "rules.delimiter", "value delimiter must not be empty")
	}
	if len(r.Rules.BlockKeywords) == 0 && r.Rules.BlockKeywordsFile == "" {
		add(SeverityWarning, "rules.block_keywords", "no block keywords; role accounts will be kept")
	}
	if r.Rules.SampleLimit < 0 {
		add(SeverityError, "rules.sample_limit", "must not be negative")
	}

	switch strings.ToLower(r.Output.Compression) {
	case "", "none", "zstd":
	default:
		add(SeverityError, "output.compression", "unknown compression %q (want none|zstd)", r.Output.Compression)
	}
	if r.Output.HighWater < 0 {
		add(SeverityError, "output.high_water", "must not be negative")
	} else if r.Output.HighWater > 0 && r.Output.HighWater < 4<<10 {
		add(SeverityWarning, "output.high_water", "%d bytes is very small; expect frequent pauses", r.Output.HighWater)
	}

	if r.Dedupe.Window < 0 {
		add(SeverityError, "dedupe.window", "must not be negative")
	}

	switch r.Ledger.Kind {
	case "":
	case "sqlite", "postgres", "mssql", "mysql":
		if strings.TrimSpace(r.Ledger.DSN) == "" {
			add(SeverityError, "ledger.dsn", "%s ledger requires a dsn", r.Ledger.Kind)
		}
	default:
		add(SeverityError, "ledger.kind", "unknown ledger kind %q (want sqlite|postgres|mssql|mysql)", r.Ledger.Kind)
	}

	switch r.Metrics.Backend {
	case "", "none":
	case "pushgateway":
		if r.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "pushgateway backend requires a URL")
		}
	case "datadog":
		if r.Metrics.DatadogAddr == "" {
			add(SeverityError, "metrics.datadog_addr", "datadog backend requires an agent address")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown metrics backend %q (want none|pushgateway|datadog)", r.Metrics.Backend)
	}

	if r.Publish.Enabled() {
		if strings.TrimSpace(r.Publish.Endpoint) == "" {
			add(SeverityError, "publish.endpoint", "publishing requires an endpoint")
		}
		if r.Publish.AccessKey == "" || r.Publish.SecretKey == "" {
			add(SeverityWarning, "publish.access_key", "no credentials; uploads are anonymous")
		}
	}

	switch strings.ToLower(r.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		add(SeverityWarning, "log.level", "unknown level %q; using info", r.Log.Level)
	}
	return issues
}

func (r Run) validateSplit() []Issue {
	var issues []Issue
	s := r.Split
	switch s.Mode {
	case "", "full":
		if s.ChunkSize <= 0 {
			issues = append(issues, Issue{SeverityError, "split.chunk_size", "chunk size must be a positive integer"})
		}
	case "ranged":
		if s.Start < 1 {
			issues = append(issues, Issue{SeverityError, "split.start", "start must be >= 1"})
		}
		if s.End < s.Start {
			issues = append(issues, Issue{SeverityError, "split.end", "end must be >= start"})
		}
		if s.Batch < 0 {
			issues = append(issues, Issue{SeverityError, "split.batch", "batch size must be a positive integer"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "split.mode", fmt.Sprintf("unknown mode %q (want full|ranged)", s.Mode)})
	}
	return issues
}
