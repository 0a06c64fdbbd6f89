package csv

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect runs Stream to completion and returns every delivered item.
func collect(t *testing.T, input string, opt Options) ([]Item, error) {
	t.Helper()

	d := NewDecoder(strings.NewReader(input), opt)
	out := make(chan Item, d.ReadAhead())
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		errCh <- d.Stream(context.Background(), out)
	}()

	var items []Item
	for it := range out {
		items = append(items, it)
	}
	return items, <-errCh
}

func fieldsOf(items []Item) [][]string {
	out := make([][]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Fields)
	}
	return out
}

func TestStream_MarkerBOMBlankAndRagged(t *testing.T) {
	t.Parallel()

	input := "\ufeffNotice: exported 2024-01-01,ignored\n" +
		"Name,Work Email\n" +
		"\n" +
		"Ann,a@x.com,extra\n" +
		"Bob\n"

	items, err := collect(t, input, Options{NoticePrefix: DefaultNoticePrefix})
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Name", "Work Email"},
		{"Ann", "a@x.com", "extra"},
		{"Bob"},
	}, fieldsOf(items))
	assert.Equal(t, 2, items[0].Line)
	assert.Equal(t, 4, items[1].Line)
	assert.Equal(t, 5, items[2].Line)
}

func TestStream_MarkerOnlyMatchesFirstRecord(t *testing.T) {
	t.Parallel()

	input := "name,note\nAnn,\"NOTICE: keep me\"\nnotice: also kept,x\n"
	items, err := collect(t, input, Options{NoticePrefix: DefaultNoticePrefix})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"notice: also kept", "x"}, items[2].Fields)
}

func TestStream_MarkerDisabled(t *testing.T) {
	t.Parallel()

	items, err := collect(t, "notice: x\nname\n", Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"notice: x"}, items[0].Fields)
}

func TestStream_BOMStrippedFromHeader(t *testing.T) {
	t.Parallel()

	items, err := collect(t, "\ufeffwork email\na@x.com\n", Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "work email", items[0].Fields[0])
}

func TestStream_QuotedDelimiterQuoteNewline(t *testing.T) {
	t.Parallel()

	input := "a,b\n\"x,\"\"y\"\"\nz\",2\n"
	items, err := collect(t, input, Options{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"x,\"y\"\nz", "2"}, items[1].Fields)
}

func TestStream_MalformedQuotingIsInBandAndFinal(t *testing.T) {
	t.Parallel()

	input := "a,b\n1,2\n3,bad\"quote\n4,5\n"
	items, err := collect(t, input, Options{})
	require.NoError(t, err, "Stream reports decode errors in-band")
	require.Len(t, items, 3)

	assert.NoError(t, items[1].Err)
	last := items[2]
	require.Error(t, last.Err)
	assert.True(t, errors.Is(last.Err, ErrMalformed))
	assert.Contains(t, last.Err.Error(), "line 3")
}

func TestStream_RecordsDoNotAliasReusedBuffer(t *testing.T) {
	t.Parallel()

	items, err := collect(t, "h\nfirst\nsecond\n", Options{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "first", items[1].Fields[0])
	assert.Equal(t, "second", items[2].Fields[0])
}

func TestStream_PauseHoldsDelivery(t *testing.T) {
	t.Parallel()

	d := NewDecoder(strings.NewReader("h\n1\n2\n3\n"), Options{ReadAhead: 1})
	out := make(chan Item, 1)

	d.Pause()
	require.True(t, d.Paused())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		defer close(out)
		done <- d.Stream(ctx, out)
	}()

	select {
	case it := <-out:
		t.Fatalf("received %v while paused", it.Fields)
	case <-time.After(50 * time.Millisecond):
	}

	d.Resume()
	var got []string
	for it := range out {
		got = append(got, it.Fields[0])
	}
	require.NoError(t, <-done)
	assert.Equal(t, []string{"h", "1", "2", "3"}, got)
}

func TestStream_CancelWhilePaused(t *testing.T) {
	t.Parallel()

	d := NewDecoder(strings.NewReader("h\n1\n"), Options{})
	out := make(chan Item, 4)
	d.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Stream(ctx, out) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancel")
	}
}

func TestStream_CustomComma(t *testing.T) {
	t.Parallel()

	items, err := collect(t, "a;b\n1;2\n", Options{Comma: ';'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, fieldsOf(items))
}
