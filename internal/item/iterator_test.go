package item

import (
	"strings"
	"testing"

	apperrors "github.com/ricesearch/riceexec/internal/pkg/errors"
)

func collectBatches(it *Iterator) [][]string {
	var out [][]string
	for b := range it.Batches() {
		out = append(out, b)
	}
	return out
}

func collectItems(it *Iterator) []string {
	var out []string
	for v := range it.Items() {
		out = append(out, v)
	}
	return out
}

func TestFromItem(t *testing.T) {
	it, err := FromItem("solo")
	if err != nil {
		t.Fatalf("FromItem() error = %v", err)
	}
	if it.TotalItems() != 1 {
		t.Fatalf("TotalItems() = %d, want 1", it.TotalItems())
	}
	batches := collectBatches(it)
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0] != "solo" {
		t.Fatalf("unexpected batches: %v", batches)
	}
}

func TestFromItem_RejectsNewline(t *testing.T) {
	_, err := FromItem("a\nb")
	if !apperrors.IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestFromCallable(t *testing.T) {
	it, err := FromCallable(func() ([]string, error) {
		return []string{"a", "b", "c", "d", "e"}, nil
	}, 2)
	if err != nil {
		t.Fatalf("FromCallable() error = %v", err)
	}
	if it.TotalItems() != 5 {
		t.Fatalf("TotalItems() = %d, want 5", it.TotalItems())
	}
	batches := collectBatches(it)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if len(batches) != len(want) {
		t.Fatalf("batches = %v, want %v", batches, want)
	}
	for i := range want {
		if strings.Join(batches[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("batch %d = %v, want %v", i, batches[i], want[i])
		}
	}
}

func TestFromCallable_InvalidBatchSize(t *testing.T) {
	_, err := FromCallable(func() ([]string, error) { return nil, nil }, 0)
	if !apperrors.IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestFromStream(t *testing.T) {
	r := strings.NewReader("a\nb\nc\nd\ne")
	it, err := FromStream(r, 2)
	if err != nil {
		t.Fatalf("FromStream() error = %v", err)
	}
	if it.TotalItems() != 5 {
		t.Fatalf("TotalItems() = %d, want 5", it.TotalItems())
	}
	items := collectItems(it)
	want := []string{"a", "b", "c", "d", "e"}
	if strings.Join(items, ",") != strings.Join(want, ",") {
		t.Errorf("items = %v, want %v", items, want)
	}
}

func TestFromStream_Empty(t *testing.T) {
	it, err := FromStream(strings.NewReader(""), 2)
	if err != nil {
		t.Fatalf("FromStream() error = %v", err)
	}
	if it.TotalItems() != 0 {
		t.Fatalf("TotalItems() = %d, want 0", it.TotalItems())
	}
	if len(collectBatches(it)) != 0 {
		t.Error("expected zero batches for empty stream")
	}
}

func TestFromStream_TrailingNewlineOptional(t *testing.T) {
	withTrailing, err := FromStream(strings.NewReader("x\ny\n"), 10)
	if err != nil {
		t.Fatalf("FromStream() error = %v", err)
	}
	withoutTrailing, err := FromStream(strings.NewReader("x\ny"), 10)
	if err != nil {
		t.Fatalf("FromStream() error = %v", err)
	}
	if withTrailing.TotalItems() != withoutTrailing.TotalItems() {
		t.Errorf("trailing newline changed item count: %d vs %d", withTrailing.TotalItems(), withoutTrailing.TotalItems())
	}
}

func TestFromStream_RejectsEmptyLine(t *testing.T) {
	_, err := FromStream(strings.NewReader("a\n\nb"), 10)
	if !apperrors.IsInvariant(err) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestBatchesNeverSpanSegmentBoundary(t *testing.T) {
	// A caller building per-segment iterators (as the worker loop does)
	// naturally gets this: each Iterator is constructed from exactly one
	// segment's worth of items, so no batch it produces can span two
	// segments.
	it, err := FromCallable(func() ([]string, error) {
		return []string{"1", "2", "3"}, nil
	}, 2)
	if err != nil {
		t.Fatalf("FromCallable() error = %v", err)
	}
	batches := collectBatches(it)
	for _, b := range batches {
		if len(b) > 2 {
			t.Errorf("batch %v exceeds batchSize", b)
		}
	}
}

func TestIteratorEarlyStop(t *testing.T) {
	it, err := FromCallable(func() ([]string, error) {
		return []string{"a", "b", "c", "d"}, nil
	}, 1)
	if err != nil {
		t.Fatalf("FromCallable() error = %v", err)
	}
	var seen []string
	for v := range it.Items() {
		seen = append(seen, v)
		if v == "b" {
			break
		}
	}
	if strings.Join(seen, ",") != "a,b" {
		t.Errorf("seen = %v, want [a b]", seen)
	}
}
