// Package shard writes derived rows into a numbered sequence of bounded,
// self-contained CSV files that all start with the same header line.
package shard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// DefaultHighWater is the buffered byte count at which Write stops accepting.
const DefaultHighWater = 256 << 10

// Compression selects the on-disk shard encoding.
type Compression string

const (
	None Compression = ""
	Zstd Compression = "zstd"
)

// ParseCompression accepts "", "none" and "zstd" in any case.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unknown compression %q (want none|zstd)", s)
	}
}

// Row is one derived row. Boundary marks the last row derived from a source
// record; a shard only ever ends after such a row.
type Row struct {
	Fields   []string
	Boundary bool
}

// Options configures a Writer.
type Options struct {
	Dir      string
	BaseName string
	// Capacity is the row count after which the shard rotates at the next
	// boundary. 0 disables rotation.
	Capacity    int
	Compression Compression
	HighWater   int
	Logger      *zap.Logger
}

// Info describes a closed shard.
type Info struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Rows  int    `json:"rows"`
	// Bytes counts uncompressed bytes including the header line; Checksum is
	// the xxh3-64 of exactly those bytes.
	Bytes      int64  `json:"bytes"`
	Checksum   uint64 `json:"checksum"`
	SizeOnDisk int64  `json:"size_on_disk"`
}

// Status is the result of a successful Write.
type Status struct {
	// Saturated reports that the buffer reached the high-water mark; the
	// caller should stop feeding rows until Drain returns.
	Saturated bool
	// RotateDue reports that the shard is full and ended on a boundary; the
	// caller should Rotate before writing the next row.
	RotateDue bool
}

// Writer owns at most one open shard at a time. It is not safe for
// concurrent use.
type Writer struct {
	opt    Options
	header []byte
	log    *zap.Logger

	cur    *openShard
	next   int
	closed []Info
	line   []byte
}

type openShard struct {
	f    *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer
	hash *xxh3.Hasher
	info Info
}

// NewWriter prepares a writer; no file or directory is created until the
// first Write.
func NewWriter(opt Options, header []string) (*Writer, error) {
	if opt.Dir == "" {
		return nil, errors.New("shard: output directory is required")
	}
	if opt.BaseName == "" {
		return nil, errors.New("shard: base name is required")
	}
	if opt.Capacity < 0 {
		return nil, fmt.Errorf("shard: negative capacity %d", opt.Capacity)
	}
	if len(header) == 0 {
		return nil, errors.New("shard: empty header")
	}
	if opt.HighWater <= 0 {
		opt.HighWater = DefaultHighWater
	}
	lg := opt.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Writer{
		opt:    opt,
		header: AppendRecord(nil, header),
		log:    lg.Named("shard"),
		next:   1,
	}, nil
}

// Header returns the encoded header line shared by every shard.
func (w *Writer) Header() []byte { return w.header }

// Open reports whether a shard is currently open.
func (w *Writer) Open() bool { return w.cur != nil }

// Shards returns the closed shards in index order.
func (w *Writer) Shards() []Info { return w.closed }

// Write appends row to the open shard, opening a new one first if needed.
func (w *Writer) Write(row Row) (Status, error) {
	if w.cur == nil {
		if err := w.openNext(); err != nil {
			return Status{}, err
		}
	}
	s := w.cur
	w.line = AppendRecord(w.line[:0], row.Fields)
	if err := s.write(w.line); err != nil {
		return Status{}, fmt.Errorf("write %s: %w", s.info.Path, err)
	}
	s.info.Rows++

	return Status{
		Saturated: s.bw.Buffered() >= w.opt.HighWater,
		RotateDue: w.opt.Capacity > 0 && s.info.Rows >= w.opt.Capacity && row.Boundary,
	}, nil
}

// Drain flushes buffered bytes to the underlying file.
func (w *Writer) Drain() error {
	if w.cur == nil {
		return nil
	}
	if err := w.cur.bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.cur.info.Path, err)
	}
	return nil
}

// Rotate closes the open shard. The next Write opens a fresh one. Rotate
// without an open shard returns a zero Info and no error.
func (w *Writer) Rotate() (Info, error) {
	if w.cur == nil {
		return Info{}, nil
	}
	s := w.cur
	w.cur = nil
	info, err := s.close()
	if err != nil {
		return info, fmt.Errorf("close %s: %w", info.Path, err)
	}
	w.closed = append(w.closed, info)
	w.log.Info("shard closed",
		zap.Int("index", info.Index),
		zap.String("path", info.Path),
		zap.Int("rows", info.Rows),
		zap.Int64("bytes", info.Bytes),
	)
	return info, nil
}

// Close releases the open shard, if any. It is safe to call more than once.
func (w *Writer) Close() error {
	_, err := w.Rotate()
	return err
}

func (w *Writer) fileName(idx int) string {
	name := fmt.Sprintf("%s_part_%05d.csv", w.opt.BaseName, idx)
	if w.opt.Compression == Zstd {
		name += ".zst"
	}
	return name
}

func (w *Writer) openNext() error {
	if err := os.MkdirAll(w.opt.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	idx := w.next
	path := filepath.Join(w.opt.Dir, w.fileName(idx))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open shard: %w", err)
	}

	s := &openShard{
		f:    f,
		hash: xxh3.New(),
		info: Info{Index: idx, Path: path},
	}
	var dst io.Writer = f
	if w.opt.Compression == Zstd {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("zstd encoder: %w", err)
		}
		s.zw = zw
		dst = zw
	}
	s.bw = bufio.NewWriterSize(dst, 2*w.opt.HighWater)

	if err := s.write(w.header); err != nil {
		_, _ = s.close()
		return fmt.Errorf("write header %s: %w", path, err)
	}
	w.next++
	w.cur = s
	w.log.Debug("shard opened", zap.Int("index", idx), zap.String("path", path))
	return nil
}

func (s *openShard) write(p []byte) error {
	if _, err := s.bw.Write(p); err != nil {
		return err
	}
	_, _ = s.hash.Write(p)
	s.info.Bytes += int64(len(p))
	return nil
}

// close flushes every layer, syncs and closes the file. The file handle is
// released even when an earlier step fails.
func (s *openShard) close() (Info, error) {
	err := s.bw.Flush()
	if s.zw != nil {
		err = errors.Join(err, s.zw.Close())
	}
	err = errors.Join(err, s.f.Sync())
	if st, serr := s.f.Stat(); serr == nil {
		s.info.SizeOnDisk = st.Size()
	}
	err = errors.Join(err, s.f.Close())
	s.info.Checksum = s.hash.Sum64()
	return s.info, err
}
