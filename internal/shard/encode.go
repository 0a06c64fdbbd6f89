package shard

import "strings"

// AppendRecord appends the shard encoding of fields to dst: every field
// double-quoted with embedded quotes doubled, comma separated, LF terminated.
// A nil or empty record encodes as a lone LF.
func AppendRecord(dst []byte, fields []string) []byte {
	for i, f := range fields {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '"')
		for {
			j := strings.IndexByte(f, '"')
			if j < 0 {
				dst = append(dst, f...)
				break
			}
			dst = append(dst, f[:j+1]...)
			dst = append(dst, '"')
			f = f[j+1:]
		}
		dst = append(dst, '"')
	}
	return append(dst, '\n')
}
