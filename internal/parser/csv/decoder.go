// Package csv turns a contact export byte stream into an ordered sequence of
// records for the splitter.
//
// The decoder runs in its own goroutine and hands records to a single
// consumer over a bounded channel. The consumer can Pause and Resume delivery
// (writer backpressure); while paused the decoder holds at most one decoded
// record plus whatever already sits in the channel buffer.
//
// Decoding rules:
//   - a leading UTF-8 BOM is dropped;
//   - an optional first "marker" line whose first cell starts with the notice
//     prefix (case-insensitive) is dropped before the header;
//   - blank lines are skipped;
//   - records may have more or fewer fields than the header;
//   - malformed quoting is fatal and is delivered in-band as Item.Err.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// DefaultNoticePrefix identifies the optional marker line some exports put
// above the header.
const DefaultNoticePrefix = "notice:"

// DefaultReadAhead is the channel capacity used when Options.ReadAhead is 0.
const DefaultReadAhead = 64

// Options configures a Decoder. Zero values select defaults.
type Options struct {
	// Comma is the field delimiter. Default ','.
	Comma rune

	// NoticePrefix is matched case-insensitively against the first cell of
	// the very first record. Empty disables marker detection.
	NoticePrefix string

	// ReadAhead bounds how many decoded records may wait for the consumer.
	ReadAhead int

	Logger *zap.Logger
}

// Record is one decoded line.
type Record struct {
	Fields []string
	// Line is the 1-based input line the record starts on.
	Line int
}

// Item is what travels on the delivery channel: a record or a fatal error.
// After an item with a non-nil Err nothing else is sent.
type Item struct {
	Record
	Err error
}

// ErrMalformed marks input that cannot be tokenized.
var ErrMalformed = errors.New("malformed csv")

// Decoder streams records from src.
type Decoder struct {
	src  io.Reader
	opt  Options
	gate gate
	log  *zap.Logger
}

// NewDecoder returns a decoder reading from src. The caller keeps ownership
// of src and closes it once Stream has returned.
func NewDecoder(src io.Reader, opt Options) *Decoder {
	if opt.Comma == 0 {
		opt.Comma = ','
	}
	if opt.ReadAhead <= 0 {
		opt.ReadAhead = DefaultReadAhead
	}
	lg := opt.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Decoder{src: src, opt: opt, log: lg.Named("decoder")}
}

// ReadAhead reports the channel capacity the consumer should allocate.
func (d *Decoder) ReadAhead() int { return d.opt.ReadAhead }

// Pause stops delivery of further records until Resume is called.
func (d *Decoder) Pause() { d.gate.pause() }

// Resume re-opens delivery after Pause. It is a no-op when not paused.
func (d *Decoder) Resume() { d.gate.open() }

// Paused reports whether delivery is currently held.
func (d *Decoder) Paused() bool { return d.gate.isPaused() }

// Stream decodes src and sends every retained record to out, in order.
//
// Decode and read errors are sent in-band as the final Item; Stream then
// returns nil. Stream returns ctx.Err() when ctx is done before the input is
// exhausted. The caller is responsible for closing out.
func (d *Decoder) Stream(ctx context.Context, out chan<- Item) error {
	cr := csv.NewReader(withoutBOM(d.src))
	cr.Comma = d.opt.Comma
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	prefix := strings.ToLower(strings.TrimSpace(d.opt.NoticePrefix))
	first := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return d.send(ctx, out, Item{Err: decodeErr(err)})
		}

		line, _ := cr.FieldPos(0)
		if first {
			first = false
			if prefix != "" && isMarker(rec, prefix) {
				d.log.Debug("dropping marker line", zap.Int("line", line), zap.String("cell", rec[0]))
				continue
			}
		}

		fields := make([]string, len(rec))
		copy(fields, rec)
		if err := d.send(ctx, out, Item{Record: Record{Fields: fields, Line: line}}); err != nil {
			return err
		}
	}
}

func (d *Decoder) send(ctx context.Context, out chan<- Item, it Item) error {
	if err := d.gate.wait(ctx); err != nil {
		return err
	}
	select {
	case out <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isMarker(rec []string, prefix string) bool {
	if len(rec) == 0 {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(rec[0])), prefix)
}

func decodeErr(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("%w: line %d column %d: %w", ErrMalformed, pe.Line, pe.Column, pe.Err)
	}
	return fmt.Errorf("read input: %w", err)
}
