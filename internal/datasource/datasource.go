// Package datasource defines where split input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens the raw input stream for one run. Open is called exactly once
// per run and the caller owns the returned ReadCloser.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the input in logs and summaries (usually a path).
	Name() string
}
