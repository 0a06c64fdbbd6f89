// Package ledger records finished split runs and their shard manifests in a
// relational store so later jobs can find what a run produced.
//
// Two tables are owned here, csvsplit_runs and csvsplit_shards. They are
// created on first use through the DDL builder registered for the backend
// kind; the backend itself is any storage.Repository.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"csvsplit/internal/splitter"
	"csvsplit/internal/storage"
)

const (
	RunsTable   = "csvsplit_runs"
	ShardsTable = "csvsplit_shards"
)

// Run statuses stored in csvsplit_runs.status.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var runsTable = storage.TableDef{
	Name: RunsTable,
	Columns: []storage.ColumnDef{
		{Name: "run_id", Type: storage.TypeText, PrimaryKey: true},
		{Name: "input", Type: storage.TypeText},
		{Name: "output_dir", Type: storage.TypeText},
		{Name: "mode", Type: storage.TypeText},
		{Name: "chunk_size", Type: storage.TypeBigInt},
		{Name: "range_start", Type: storage.TypeBigInt},
		{Name: "range_end", Type: storage.TypeBigInt},
		{Name: "batch_size", Type: storage.TypeBigInt},
		{Name: "rows_scanned", Type: storage.TypeBigInt},
		{Name: "rows_without_value", Type: storage.TypeBigInt},
		{Name: "rows_written", Type: storage.TypeBigInt},
		{Name: "shards", Type: storage.TypeBigInt},
		{Name: "rows_excluded", Type: storage.TypeBigInt},
		{Name: "values_filtered", Type: storage.TypeBigInt},
		{Name: "values_duplicate", Type: storage.TypeBigInt},
		{Name: "rows_skipped", Type: storage.TypeBigInt},
		{Name: "backpressure_pauses", Type: storage.TypeBigInt},
		{Name: "finished", Type: storage.TypeBool},
		{Name: "status", Type: storage.TypeText},
		{Name: "error", Type: storage.TypeText, Nullable: true},
		{Name: "started_at", Type: storage.TypeTimestamp},
		{Name: "finished_at", Type: storage.TypeTimestamp},
	},
}

var shardsTable = storage.TableDef{
	Name: ShardsTable,
	Columns: []storage.ColumnDef{
		{Name: "run_id", Type: storage.TypeText, PrimaryKey: true},
		{Name: "shard_index", Type: storage.TypeBigInt, PrimaryKey: true},
		{Name: "path", Type: storage.TypeText},
		{Name: "row_count", Type: storage.TypeBigInt},
		{Name: "bytes", Type: storage.TypeBigInt},
		{Name: "size_on_disk", Type: storage.TypeBigInt},
		{Name: "checksum", Type: storage.TypeText},
	},
}

// Tables returns the definitions of every table the ledger writes.
func Tables() []storage.TableDef { return []storage.TableDef{runsTable, shardsTable} }

// NewRunID returns a time-ordered run identifier.
func NewRunID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Ledger writes run records through a storage.Repository.
type Ledger struct {
	repo storage.Repository
	log  *zap.Logger
	own  bool
}

// Open connects to the backend described by cfg and bootstraps the schema.
// The returned Ledger owns the connection; Close releases it.
func Open(ctx context.Context, cfg storage.Config, log *zap.Logger) (*Ledger, error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l, err := New(ctx, cfg.Kind, repo, log)
	if err != nil {
		repo.Close()
		return nil, err
	}
	l.own = true
	return l, nil
}

// New bootstraps the schema on an already-open repository of the given kind.
// The caller keeps ownership of repo.
func New(ctx context.Context, kind string, repo storage.Repository, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := storage.EnsureTables(ctx, kind, repo, Tables()...); err != nil {
		return nil, fmt.Errorf("bootstrap ledger schema: %w", err)
	}
	return &Ledger{repo: repo, log: log.Named("ledger")}, nil
}

// Record stores s and its shard manifest. runErr is the error the run ended
// with, if any; it decides the stored status.
func (l *Ledger) Record(ctx context.Context, s *splitter.Summary, runErr error) error {
	if s == nil {
		return errors.New("ledger: nil summary")
	}
	if s.RunID == "" {
		return errors.New("ledger: summary has no run id")
	}

	status := StatusSucceeded
	var errText any
	if runErr != nil {
		status = StatusFailed
		errText = runErr.Error()
	}

	run := []any{
		s.RunID, s.Input, s.OutputDir, string(s.Mode),
		int64(s.ChunkSize), s.Start, s.End, int64(s.BatchSize),
		s.Scanned, s.WithoutValue, s.Written, s.Shards,
		s.Excluded, s.Filtered, s.Duplicates, s.Skipped,
		s.Pauses, s.Finished, status, errText,
		s.StartedAt.UTC(), s.FinishedAt.UTC(),
	}
	if _, err := l.repo.CopyFrom(ctx, RunsTable, runsTable.ColumnNames(), [][]any{run}); err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}

	if len(s.Files) > 0 {
		rows := make([][]any, 0, len(s.Files))
		for _, f := range s.Files {
			rows = append(rows, []any{
				s.RunID, int64(f.Index), f.Path, int64(f.Rows),
				f.Bytes, f.SizeOnDisk, fmt.Sprintf("%016x", f.Checksum),
			})
		}
		if _, err := l.repo.CopyFrom(ctx, ShardsTable, shardsTable.ColumnNames(), rows); err != nil {
			return fmt.Errorf("record shards of run %s: %w", s.RunID, err)
		}
	}

	l.log.Info("run recorded",
		zap.String("run_id", s.RunID),
		zap.String("status", status),
		zap.Int("shards", len(s.Files)),
		zap.Duration("elapsed", s.FinishedAt.Sub(s.StartedAt).Truncate(time.Millisecond)),
	)
	return nil
}

// Close releases the connection when the Ledger opened it.
func (l *Ledger) Close() {
	if l.own {
		l.repo.Close()
	}
}
