// Package publish copies the shards of a finished run, plus a JSON summary,
// to object storage under <prefix>/<run-id>/.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"csvsplit/internal/metrics"
	"csvsplit/internal/splitter"
)

// SummaryObject is the object name of the uploaded run summary.
const SummaryObject = "summary.json"

// Store is the upload surface a Publisher needs. *S3Store implements it.
type Store interface {
	PutFile(ctx context.Context, key, path, contentType string) (int64, error)
}

// Object is one uploaded file.
type Object struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Publisher uploads run artifacts to a Store.
type Publisher struct {
	store  Store
	prefix string
	log    *zap.Logger
}

// New returns a Publisher writing under prefix (may be empty).
func New(store Store, prefix string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{store: store, prefix: strings.Trim(prefix, "/"), log: log.Named("publish")}
}

// Key returns the object key for a local file of run runID.
func (p *Publisher) Key(runID, file string) string {
	return path.Join(p.prefix, runID, filepath.Base(file))
}

// Publish uploads every shard of s in order, then the JSON summary. It stops
// at the first failure; objects already uploaded are returned with the error.
func (p *Publisher) Publish(ctx context.Context, s *splitter.Summary) (objs []Object, err error) {
	if s == nil || s.RunID == "" {
		return nil, errors.New("publish: summary with a run id is required")
	}
	started := time.Now()
	defer func() { metrics.RecordStep(s.RunID, "publish", err, time.Since(started)) }()

	for _, f := range s.Files {
		if err := ctx.Err(); err != nil {
			return objs, err
		}
		key := p.Key(s.RunID, f.Path)
		n, err := p.store.PutFile(ctx, key, f.Path, contentType(f.Path))
		if err != nil {
			return objs, fmt.Errorf("publish shard %d: %w", f.Index, err)
		}
		objs = append(objs, Object{Key: key, Size: n})
		p.log.Debug("shard uploaded", zap.String("key", key), zap.Int64("bytes", n))
	}

	obj, err := p.putSummary(ctx, s)
	if err != nil {
		return objs, err
	}
	objs = append(objs, obj)

	p.log.Info("run published",
		zap.String("run_id", s.RunID),
		zap.Int("objects", len(objs)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return objs, nil
}

func (p *Publisher) putSummary(ctx context.Context, s *splitter.Summary) (Object, error) {
	tmp, err := os.CreateTemp("", "csvsplit-summary-*.json")
	if err != nil {
		return Object{}, fmt.Errorf("stage summary: %w", err)
	}
	defer os.Remove(tmp.Name())

	werr := s.WriteJSON(tmp)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return Object{}, fmt.Errorf("stage summary: %w", werr)
	}

	key := path.Join(p.prefix, s.RunID, SummaryObject)
	n, err := p.store.PutFile(ctx, key, tmp.Name(), "application/json")
	if err != nil {
		return Object{}, fmt.Errorf("publish summary: %w", err)
	}
	return Object{Key: key, Size: n}, nil
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
