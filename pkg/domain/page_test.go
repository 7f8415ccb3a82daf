package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countOf(n int64) TotalSupplier {
	return func() (int64, error) { return n, nil }
}

func failingCount(t *testing.T) TotalSupplier {
	return func() (int64, error) {
		t.Fatal("count supplier should not run")
		return 0, nil
	}
}

func TestPageOf_UnpagedUsesContentLength(t *testing.T) {
	page, err := PageOf([]any{1, 2, 3}, UnpagedRequest(Unsorted()), failingCount(t))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.False(t, page.HasNext)
}

func TestPageOf_ShortFirstPageSkipsCount(t *testing.T) {
	page, err := PageOf([]any{1, 2}, PageRequest(0, 5), failingCount(t))
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.False(t, page.HasNext)
}

func TestPageOf_ShortLaterPageSkipsCount(t *testing.T) {
	// a short non-empty page past the first one ends the data set
	page, err := PageOf([]any{1, 2, 3}, PageRequest(1, 5), failingCount(t))
	require.NoError(t, err)
	assert.Equal(t, int64(8), page.Total)
	assert.False(t, page.HasNext)
}

func TestPageOf_FullPageRunsCount(t *testing.T) {
	page, err := PageOf([]any{1, 2, 3, 4, 5}, PageRequest(0, 5), countOf(12))
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.Total)
	assert.True(t, page.HasNext)
}

func TestPageOf_EmptyLaterPageRunsCount(t *testing.T) {
	// an empty page beyond the first says nothing about the total
	page, err := PageOf(nil, PageRequest(3, 5), countOf(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), page.Total)
	assert.False(t, page.HasNext)
}

func TestPageOf_CountErrorPropagates(t *testing.T) {
	boom := errors.New("count failed")
	_, err := PageOf([]any{1, 2, 3, 4, 5}, PageRequest(0, 5), func() (int64, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestSliceSize(t *testing.T) {
	s := Slice{Content: []any{1, 2}}
	assert.Equal(t, 2, s.Size())
}
