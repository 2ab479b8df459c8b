// Package streamread implements the lazy, chunked forward/backward reader:
// a pull-based producer that turns repeated bounded fetches into a single
// Go 1.23 range-over-func iterator, so callers write
// "for item, err := range it(ctx) { ... }" and get break-to-cancel
// semantics for free instead of materializing the whole sequence.
package streamread

import (
	"context"
	"iter"
)

// Fetcher issues one chunk's worth of items starting at cursor. An empty
// items slice with a nil error ends iteration cleanly (reading past the end
// of a stream is not an error). nextCursor is only consulted when items is
// non-empty.
type Fetcher[T any] func(ctx context.Context, cursor any) (items []T, nextCursor any, err error)

// New returns a lazy iterator that starts at startCursor and calls fetch
// again each time its locally buffered chunk is exhausted. The iterator is
// not restartable: ranging over it twice issues the underlying fetches
// twice, from startCursor both times (referentially transparent with
// respect to an unchanging backing store, but destructive of any
// in-progress position).
func New[T any](fetch Fetcher[T], startCursor any) func(context.Context) iter.Seq2[T, error] {
	return func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			cursor := startCursor
			for {
				items, next, err := fetch(ctx, cursor)
				if err != nil {
					var zero T
					yield(zero, err)
					return
				}
				if len(items) == 0 {
					return
				}
				for _, item := range items {
					if !yield(item, nil) {
						return
					}
				}
				cursor = next
			}
		}
	}
}
