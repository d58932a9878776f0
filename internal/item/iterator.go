// Package item implements ChunkedItemIterator (§4.1): a restartable lazy
// sequence of batches built from an in-memory item, a lazy producer
// callable, or a newline-delimited byte stream.
package item

import (
	"bufio"
	"context"
	"io"
	"iter"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/ricesearch/riceexec/internal/pkg/errors"
)

// Iterator exposes the total item count computed at construction time plus
// lazy single-pass sequences over batches and flat items (§4.1).
type Iterator struct {
	totalItems int
	batches    [][]string
}

// TotalItems returns the number of items materialized at construction.
func (it *Iterator) TotalItems() int {
	return it.totalItems
}

// Batches returns a lazy sequence of ordered batches, each of length in
// [1, batchSize] (the final batch of a source may be shorter).
func (it *Iterator) Batches() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for _, b := range it.batches {
			if !yield(b) {
				return
			}
		}
	}
}

// Items returns a lazy flat sequence over every item in order, derived from
// Batches.
func (it *Iterator) Items() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, b := range it.batches {
			for _, item := range b {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// FromItem yields one batch of one item; totalItems = 1.
func FromItem(single string) (*Iterator, error) {
	if err := validateItem(single); err != nil {
		return nil, err
	}
	return &Iterator{
		totalItems: 1,
		batches:    [][]string{{single}},
	}, nil
}

// FromCallable invokes producer once to obtain the full set of items,
// partitions them into batches of batchSize, and exposes the materialized
// count as totalItems.
func FromCallable(producer func() ([]string, error), batchSize int) (*Iterator, error) {
	if batchSize < 1 {
		return nil, apperrors.InvariantError("batchSize must be >= 1")
	}

	items, err := producer()
	if err != nil {
		return nil, err
	}
	if err := validateItemsConcurrently(items); err != nil {
		return nil, err
	}

	return &Iterator{
		totalItems: len(items),
		batches:    partition(items, batchSize),
	}, nil
}

// validateItemsConcurrently checks every item's invariants in parallel
// shards bounded by GOMAXPROCS. The producer is invoked exactly once by the
// caller; this only parallelizes the validation pass over its already
// materialized result, which is safe regardless of how the producer itself
// was implemented.
func validateItemsConcurrently(items []string) error {
	if len(items) == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	g, _ := errgroup.WithContext(context.Background())
	chunk := (len(items) + workers - 1) / workers
	for start := 0; start < len(items); start += chunk {
		end := start + chunk
		if end > len(items) {
			end = len(items)
		}
		shard := items[start:end]
		g.Go(func() error {
			for _, s := range shard {
				if err := validateItem(s); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// FromStream reads a newline-delimited byte stream to EOF, stripping the
// terminator from each line to produce one item per line, and partitions
// them into batches of batchSize. Empty input yields zero batches and
// totalItems = 0. The final record need not be newline-terminated.
func FromStream(r io.Reader, batchSize int) (*Iterator, error) {
	if batchSize < 1 {
		return nil, apperrors.InvariantError("batchSize must be >= 1")
	}

	var items []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			return nil, apperrors.InvariantError("item must not be empty")
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &Iterator{
		totalItems: len(items),
		batches:    partition(items, batchSize),
	}, nil
}

func partition(items []string, batchSize int) [][]string {
	if len(items) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(items)+batchSize-1)/batchSize)
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

func validateItem(s string) error {
	if s == "" {
		return apperrors.InvariantError("item must not be empty")
	}
	if strings.ContainsRune(s, '\n') {
		return apperrors.InvariantError("item must not contain a newline byte")
	}
	return nil
}
