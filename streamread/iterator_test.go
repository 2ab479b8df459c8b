package streamread_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/escore/streamread"
)

func chunkFetcher(chunks [][]int) (streamread.Fetcher[int], *[]any) {
	var calls []any
	fetch := func(_ context.Context, cursor any) ([]int, any, error) {
		calls = append(calls, cursor)
		idx := cursor.(int)
		if idx >= len(chunks) {
			return nil, nil, nil
		}
		return chunks[idx], idx + 1, nil
	}
	return fetch, &calls
}

func TestIteratorConcatenatesChunksInOrder(t *testing.T) {
	fetch, calls := chunkFetcher([][]int{{1, 2, 3}, {4, 5}, {6}})
	it := streamread.New(fetch, 0)

	var got []int
	for v, err := range it(context.Background()) {
		require.NoError(t, err)
		got = append(got, v)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, got)
	assert.Len(t, *calls, 4) // three chunks plus the terminating empty fetch
}

func TestIteratorEmptyStreamYieldsNothingNoError(t *testing.T) {
	fetch, _ := chunkFetcher([][]int{})
	it := streamread.New(fetch, 0)

	count := 0
	for range it(context.Background()) {
		count++
	}
	assert.Equal(t, 0, count)
}

func TestIteratorStopsOnBreak(t *testing.T) {
	fetch, calls := chunkFetcher([][]int{{1, 2}, {3, 4}, {5, 6}})
	it := streamread.New(fetch, 0)

	var got []int
	for v, err := range it(context.Background()) {
		require.NoError(t, err)
		got = append(got, v)
		if v == 2 {
			break
		}
	}

	assert.Equal(t, []int{1, 2}, got)
	assert.Len(t, *calls, 1)
}

func TestIteratorPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, cursor any) ([]int, any, error) {
		if cursor.(int) == 0 {
			return []int{1}, 1, nil
		}
		return nil, nil, boom
	}
	it := streamread.New(fetch, 0)

	var got []int
	var lastErr error
	for v, err := range it(context.Background()) {
		if err != nil {
			lastErr = err
			break
		}
		got = append(got, v)
	}

	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, lastErr, boom)
}
