package splitter

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"csvsplit/internal/datasource/file"
	"csvsplit/internal/shard"
	"csvsplit/internal/transformer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func baseOptions(t *testing.T, input string) Options {
	t.Helper()
	return Options{
		Source:    file.NewLocal(input),
		OutputDir: filepath.Join(t.TempDir(), "splits"),
		Mode:      Full,
		ChunkSize: DefaultChunkSize,
	}
}

func run(t *testing.T, opt Options) (*Summary, error) {
	t.Helper()
	e, err := New(opt)
	require.NoError(t, err)
	return e.Run(context.Background())
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	require.NoError(t, err)
	return recs
}

// numbered builds a header plus n rows "n<i>,u<i>@x.com,x.com".
func numbered(n int, mutate func(i int) string) string {
	var b strings.Builder
	b.WriteString("name,work email,domain\n")
	for i := 1; i <= n; i++ {
		if mutate != nil {
			if line := mutate(i); line != "" {
				b.WriteString(line + "\n")
				continue
			}
		}
		fmt.Fprintf(&b, "n%d,u%03d@x.com,x.com\n", i, i)
	}
	return b.String()
}

func dataRows(t *testing.T, files []shard.Info) ([][]string, [][]string) {
	t.Helper()
	var headers, rows [][]string
	for _, f := range files {
		recs := readCSV(t, f.Path)
		require.NotEmpty(t, recs)
		headers = append(headers, recs[0])
		rows = append(rows, recs[1:]...)
	}
	return headers, rows
}

func TestRunFullModeShardsAndOrder(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, numbered(25, nil)))
	opt.ChunkSize = 10
	sum, err := run(t, opt)
	require.NoError(t, err)

	assert.Equal(t, int64(3), sum.Shards)
	require.Len(t, sum.Files, 3)
	assert.Equal(t, []int{10, 10, 5}, []int{sum.Files[0].Rows, sum.Files[1].Rows, sum.Files[2].Rows})
	assert.Equal(t, int64(25), sum.Scanned)
	assert.Equal(t, int64(25), sum.Written)
	assert.True(t, sum.Finished)

	for i, f := range sum.Files {
		assert.Equal(t, fmt.Sprintf("contacts_part_%05d.csv", i+1), filepath.Base(f.Path))
	}

	_, rows := dataRows(t, sum.Files)
	require.Len(t, rows, 25)
	for i, r := range rows {
		assert.Equal(t, fmt.Sprintf("u%03d@x.com", i+1), r[1])
	}
}

func TestRunHeadersByteIdentical(t *testing.T) {
	t.Parallel()

	in := "Name,Work Email,Phone Numbers\n" +
		"a,a@x.com,tel:1\n" +
		"b,b@x.com,\n" +
		"c,c@x.com,tel:3;4\n"
	opt := baseOptions(t, writeInput(t, in))
	opt.ChunkSize = 1
	sum, err := run(t, opt)
	require.NoError(t, err)
	require.Len(t, sum.Files, 3)

	var first []byte
	for _, f := range sum.Files {
		b, err := os.ReadFile(f.Path)
		require.NoError(t, err)
		line := b[:bytes.IndexByte(b, '\n')+1]
		if first == nil {
			first = line
			continue
		}
		assert.Equal(t, first, line)
	}
	assert.Equal(t, `"Name","Work Email","Phone Numbers","other phone numbers"`+"\n", string(first))
}

func TestRunExpansionNeverSplitAcrossShards(t *testing.T) {
	t.Parallel()

	in := "work email\n" +
		"a@x.com;b@x.com;c@x.com\n" +
		"d@x.com\n"
	opt := baseOptions(t, writeInput(t, in))
	opt.ChunkSize = 2
	sum, err := run(t, opt)
	require.NoError(t, err)
	require.Len(t, sum.Files, 2)
	assert.Equal(t, 3, sum.Files[0].Rows)
	assert.Equal(t, 1, sum.Files[1].Rows)
}

func TestRunTransformCounters(t *testing.T) {
	t.Parallel()

	in := "name,work email,domain,phone numbers\n" +
		"two,a@x.com;b@x.com,x.com,\n" +         // 2 rows
		"blocked,support@x.com,x.com,\n" +       // 0 rows, not without-value
		"school,s@school.edu,school.edu,\n" +    // excluded, not scanned
		"blank,,x.com,\n" +                      // without value
		"delims, ; ,x.com,\n" +                  // without value
		"phones,p@x.com,x.com,tel:111;222;333\n" // 1 row
	opt := baseOptions(t, writeInput(t, in))
	sum, err := run(t, opt)
	require.NoError(t, err)

	assert.Equal(t, int64(5), sum.Scanned)
	assert.Equal(t, int64(2), sum.WithoutValue)
	assert.Equal(t, int64(3), sum.Written)
	assert.Equal(t, int64(1), sum.Excluded)
	assert.Equal(t, int64(1), sum.Filtered)

	_, rows := dataRows(t, sum.Files)
	want := [][]string{
		{"two", "a@x.com", "x.com", "", ""},
		{"two", "b@x.com", "x.com", "", ""},
		{"phones", "p@x.com", "x.com", "111", "222;333"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDefaultsFillEmptyRulesAndColumns(t *testing.T) {
	t.Parallel()

	in := "name,work email,domain,phone numbers\n" +
		"kept,k@x.com,x.com,TEL:1;2\n" +
		"role,SUPPORT@x.com,x.com,\n" +
		"agency,a@agency.gov,Agency.GOV,\n"

	opt := baseOptions(t, writeInput(t, in))
	opt.Columns = ColumnNames{Value: "work email"}
	opt.Rules = transformer.Rules{Delimiter: ";"}
	sum, err := run(t, opt)
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Written)
	assert.Equal(t, int64(1), sum.Filtered)
	assert.Equal(t, int64(1), sum.Excluded)
	_, rows := dataRows(t, sum.Files)
	assert.Equal(t, [][]string{{"kept", "k@x.com", "x.com", "1", "2"}}, rows)
}

func TestRunExactKeepsRulesOff(t *testing.T) {
	t.Parallel()

	in := "work email,domain\n" +
		"support@x.com,x.com\n" +
		"s@school.edu,school.edu\n"

	opt := baseOptions(t, writeInput(t, in))
	opt.Columns = ColumnNames{Value: "work email", Domain: "domain"}
	opt.Rules = transformer.Rules{Delimiter: ";"}
	opt.Exact = true
	sum, err := run(t, opt)
	require.NoError(t, err)

	assert.Equal(t, int64(2), sum.Written)
	assert.Zero(t, sum.Filtered)
	assert.Zero(t, sum.Excluded)
}

func TestRunRangedStopsBeforeMalformedRow(t *testing.T) {
	t.Parallel()

	in := numbered(100, func(i int) string {
		if i == 21 {
			return `n21,bad"quote,x.com`
		}
		return ""
	})
	opt := baseOptions(t, writeInput(t, in))
	opt.Mode, opt.Start, opt.End = Ranged, 10, 20
	sum, err := run(t, opt)
	require.NoError(t, err)

	require.Len(t, sum.Files, 1)
	assert.Equal(t, int64(11), sum.Scanned)
	assert.Equal(t, int64(11), sum.Written)
	assert.Equal(t, int64(9), sum.Skipped)
	assert.True(t, sum.Finished)

	_, rows := dataRows(t, sum.Files)
	require.Len(t, rows, 11)
	assert.Equal(t, "u010@x.com", rows[0][1])
	assert.Equal(t, "u020@x.com", rows[10][1])
}

func TestRunRangedBatches(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, numbered(30, nil)))
	opt.Mode, opt.Start, opt.End, opt.Batch = Ranged, 5, 14, 4
	sum, err := run(t, opt)
	require.NoError(t, err)
	require.Len(t, sum.Files, 3)
	assert.Equal(t, []int{4, 4, 2}, []int{sum.Files[0].Rows, sum.Files[1].Rows, sum.Files[2].Rows})
	assert.Equal(t, 4, sum.BatchSize)
}

func TestRunRangedPastEndOfInput(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, numbered(5, nil)))
	opt.Mode, opt.Start, opt.End = Ranged, 4, 50
	sum, err := run(t, opt)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Written)
	assert.True(t, sum.Finished)
}

func TestRunDecodeErrorKeepsWrittenShards(t *testing.T) {
	t.Parallel()

	in := numbered(30, func(i int) string {
		if i == 21 {
			return `n21,bad"quote,x.com`
		}
		return ""
	})
	opt := baseOptions(t, writeInput(t, in))
	opt.ChunkSize = 10
	sum, err := run(t, opt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode), err)
	require.NotNil(t, sum)
	assert.False(t, sum.Finished)
	require.Len(t, sum.Files, 2)
	for _, f := range sum.Files {
		_, statErr := os.Stat(f.Path)
		assert.NoError(t, statErr)
	}
}

func TestRunMissingValueColumnHasNoSideEffects(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, "name,email\na,a@x.com\n"))
	_, err := run(t, opt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, statErr := os.Stat(opt.OutputDir)
	assert.True(t, os.IsNotExist(statErr), "output dir must not be created")
}

func TestRunEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := run(t, baseOptions(t, writeInput(t, "")))
	assert.True(t, errors.Is(err, ErrConfiguration), err)
}

func TestRunHeaderOnlyCreatesNothing(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, "work email\n"))
	sum, err := run(t, opt)
	require.NoError(t, err)
	assert.Empty(t, sum.Files)
	_, statErr := os.Stat(opt.OutputDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunInputNotFound(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, filepath.Join(t.TempDir(), "missing.csv"))
	sum, err := run(t, opt)
	assert.Nil(t, sum)
	assert.True(t, errors.Is(err, ErrInputNotFound), err)
}

func TestRunWriteError(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	opt := baseOptions(t, writeInput(t, numbered(500, nil)))
	opt.OutputDir = filepath.Join(blocker, "out")
	_, err := run(t, opt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite), err)
}

func TestRunMarkerAndBOM(t *testing.T) {
	t.Parallel()

	in := "\ufeffNOTICE: generated export,,\nname,work email\na,a@x.com\n"
	opt := baseOptions(t, writeInput(t, in))
	opt.NoticePrefix = "notice:"
	sum, err := run(t, opt)
	require.NoError(t, err)
	require.Len(t, sum.Files, 1)
	recs := readCSV(t, sum.Files[0].Path)
	assert.Equal(t, [][]string{{"name", "work email"}, {"a", "a@x.com"}}, recs)
}

func TestRunBackpressure(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, numbered(200, nil)))
	opt.HighWater = 128
	opt.ReadAhead = 2
	sum, err := run(t, opt)
	require.NoError(t, err)
	assert.Greater(t, sum.Pauses, int64(0))

	_, rows := dataRows(t, sum.Files)
	require.Len(t, rows, 200)
	assert.Equal(t, "u200@x.com", rows[199][1])
}

func TestRunDedupe(t *testing.T) {
	t.Parallel()

	in := "work email\na@x.com;b@x.com\nA@X.com\nc@x.com;b@x.com\n"
	opt := baseOptions(t, writeInput(t, in))
	opt.Dedupe = true
	sum, err := run(t, opt)
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Written)
	assert.Equal(t, int64(2), sum.Duplicates)
	assert.Equal(t, int64(3), sum.Scanned)
}

func TestRunOnShardAndCompression(t *testing.T) {
	t.Parallel()

	opt := baseOptions(t, writeInput(t, numbered(9, nil)))
	opt.ChunkSize = 4
	opt.Compression = shard.Zstd
	var seen []int
	opt.OnShard = func(i shard.Info) { seen = append(seen, i.Index) }
	sum, err := run(t, opt)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
	assert.Equal(t, ".zst", filepath.Ext(sum.Files[0].Path))
}

// pipeSource serves a reader that never ends until the test closes it.
type pipeSource struct{ r io.ReadCloser }

func (p pipeSource) Open(context.Context) (io.ReadCloser, error) { return p.r, nil }
func (p pipeSource) Name() string                                 { return "pipe.csv" }

func TestRunCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	go func() { _, _ = pw.Write([]byte("work email\na@x.com\n")) }()

	opt := baseOptions(t, "unused")
	opt.Source = pipeSource{r: pr}
	e, err := New(opt)
	require.NoError(t, err)
	assert.Equal(t, "pipe", e.opt.BaseName)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var sum *Summary
	go func() {
		var err error
		sum, err = e.Run(ctx)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	// the blocked Read only returns once the writer side goes away
	time.AfterFunc(200*time.Millisecond, func() { _ = pw.Close() })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, sum)
		assert.False(t, sum.Finished)
		assert.Equal(t, int64(1), sum.Written)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	src := file.NewLocal("x.csv")
	tests := []struct {
		name string
		opt  Options
	}{
		{"no_source", Options{OutputDir: "o", ChunkSize: 1}},
		{"no_output", Options{Source: src, ChunkSize: 1}},
		{"zero_chunk", Options{Source: src, OutputDir: "o"}},
		{"negative_chunk", Options{Source: src, OutputDir: "o", ChunkSize: -5}},
		{"range_start_zero", Options{Source: src, OutputDir: "o", Mode: Ranged, Start: 0, End: 3}},
		{"range_inverted", Options{Source: src, OutputDir: "o", Mode: Ranged, Start: 5, End: 3}},
		{"negative_batch", Options{Source: src, OutputDir: "o", Mode: Ranged, Start: 1, End: 3, Batch: -1}},
		{"unknown_mode", Options{Source: src, OutputDir: "o", Mode: "sideways", ChunkSize: 1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.opt)
			assert.True(t, errors.Is(err, ErrConfiguration), err)
		})
	}

	e, err := New(Options{Source: src, OutputDir: "o", Mode: Ranged, Start: 1, End: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, e.capacity())
}
