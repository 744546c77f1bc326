package logbuf

import (
	"fmt"
	"testing"
)

func TestAppendBelowCapacity(t *testing.T) {
	b := New(4)
	b.Append("one")
	b.Append("two")

	if b.Len() != 2 {
		t.Fatalf("expected 2 lines, got %d", b.Len())
	}

	got := b.Snapshot()
	if got[0] != "one" || got[1] != "two" {
		t.Errorf("unexpected snapshot order: %v", got)
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	b := New(1000)
	for i := 0; i < 1000; i++ {
		b.Append(fmt.Sprintf("line-%d", i))
	}

	if b.Len() != 1000 {
		t.Fatalf("expected full buffer, got %d", b.Len())
	}
	if b.Snapshot()[0] != "line-0" {
		t.Fatalf("oldest line should still be line-0")
	}

	// The 1001st append drops exactly the oldest line.
	b.Append("line-1000")
	if b.Len() != 1000 {
		t.Fatalf("length exceeded capacity: %d", b.Len())
	}

	got := b.Snapshot()
	if got[0] != "line-1" {
		t.Errorf("expected oldest line to be line-1, got %q", got[0])
	}
	if got[len(got)-1] != "line-1000" {
		t.Errorf("expected newest line to be line-1000, got %q", got[len(got)-1])
	}
}

func TestLenNeverExceedsCapacity(t *testing.T) {
	b := New(8)
	for i := 0; i < 100; i++ {
		b.Append(fmt.Sprintf("%d", i))
		if b.Len() > b.Capacity() {
			t.Fatalf("length %d exceeds capacity %d after %d appends", b.Len(), b.Capacity(), i+1)
		}
	}

	got := b.Snapshot()
	if len(got) != 8 {
		t.Fatalf("expected 8 lines, got %d", len(got))
	}
	for i, line := range got {
		if line != fmt.Sprintf("%d", 92+i) {
			t.Errorf("index %d: expected %d, got %q", i, 92+i, line)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := New(4)
	b.Append("a")
	snap := b.Snapshot()
	snap[0] = "mutated"

	if b.Snapshot()[0] != "a" {
		t.Error("snapshot mutation leaked into the buffer")
	}
}
