package splitter

import (
	"fmt"

	"go.uber.org/zap"

	"csvsplit/internal/shard"
)

// pauser is the decoder side of the backpressure edge.
type pauser interface {
	Pause()
	Resume()
}

// flow couples the shard writer to the decoder. Saturation and rotation
// both hold delivery until the writer has finished flushing, so rows from
// successive shards never interleave.
type flow struct {
	src     pauser
	w       *shard.Writer
	log     *zap.Logger
	onShard func(shard.Info)

	pauses int64
}

// write sends one derived row and handles whatever the writer asks for.
func (f *flow) write(row shard.Row) error {
	st, err := f.w.Write(row)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if st.Saturated {
		if err := f.relieve(); err != nil {
			return err
		}
	}
	if st.RotateDue {
		if err := f.rotate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *flow) relieve() error {
	f.src.Pause()
	defer f.src.Resume()
	f.pauses++
	if err := f.w.Drain(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	return nil
}

func (f *flow) rotate() error {
	f.src.Pause()
	defer f.src.Resume()
	return f.closeShard()
}

// closeShard closes the open shard, if any, and reports it.
func (f *flow) closeShard() error {
	if !f.w.Open() {
		return nil
	}
	info, err := f.w.Rotate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if f.onShard != nil {
		f.onShard(info)
	}
	return nil
}
