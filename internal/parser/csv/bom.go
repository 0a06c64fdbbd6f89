package csv

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// withoutBOM wraps r so that a leading UTF-8 byte order mark never reaches
// the CSV reader (it would otherwise end up glued to the first header cell).
// Input without a BOM passes through as UTF-8.
func withoutBOM(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}
