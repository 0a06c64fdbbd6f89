package splitter

import "errors"

// Fatal error kinds; test with errors.Is. Two failures fall outside them:
// a cancelled Run returns the context's error, and an input that exists but
// cannot be opened returns the source's error wrapped as "open input".
var (
	// ErrConfiguration: missing value column, bad chunk size or range, empty
	// input. Raised before any output is created.
	ErrConfiguration = errors.New("configuration error")
	// ErrInputNotFound: the input location does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrDecode: the input cannot be tokenized. Shards already written stay.
	ErrDecode = errors.New("decode error")
	// ErrWrite: a shard could not be opened, written or closed.
	ErrWrite = errors.New("write error")
)
