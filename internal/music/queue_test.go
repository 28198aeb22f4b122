package music

import (
	"fmt"
	"sort"
	"testing"
)

func makeTracks(n int) []*Track {
	tracks := make([]*Track, n)
	for i := range tracks {
		tracks[i] = &Track{Title: fmt.Sprintf("track-%d", i)}
	}
	return tracks
}

func TestDequeueNextFIFO(t *testing.T) {
	q := NewQueue()
	tracks := makeTracks(3)
	q.EnqueueAll(tracks)

	for i, want := range tracks {
		got := q.DequeueNext()
		if got != want {
			t.Fatalf("dequeue %d: got %v, want %v", i, got, want)
		}
	}

	if q.Len() != 0 {
		t.Fatalf("queue length after draining = %d, want 0", q.Len())
	}
	if got := q.DequeueNext(); got != nil {
		t.Fatalf("dequeue from empty queue = %v, want nil", got)
	}
}

func TestDequeueNextLoopAllCyclesInOrder(t *testing.T) {
	q := NewQueue()
	tracks := makeTracks(3)
	q.EnqueueAll(tracks)
	q.SetLoopMode(LoopModeAll)

	// Two full cycles must replay the same order.
	for cycle := 0; cycle < 2; cycle++ {
		for i, want := range tracks {
			got := q.DequeueNext()
			if got != want {
				t.Fatalf("cycle %d dequeue %d: got %q, want %q", cycle, i, got.Title, want.Title)
			}
		}
	}

	if q.Len() != len(tracks) {
		t.Fatalf("queue length after looping = %d, want %d", q.Len(), len(tracks))
	}
}

func TestDequeueNextLoopSingleRepeatsHead(t *testing.T) {
	q := NewQueue()
	track := &Track{Title: "only"}
	q.Enqueue(track)
	q.SetLoopMode(LoopModeSingle)

	for i := 0; i < 3; i++ {
		if got := q.DequeueNext(); got != track {
			t.Fatalf("dequeue %d: got %v, want the same track", i, got)
		}
	}

	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
	if q.PlayCount() != 3 {
		t.Fatalf("play count = %d, want 3 (loop replays count)", q.PlayCount())
	}
}

func TestRemoveAt(t *testing.T) {
	q := NewQueue()
	tracks := makeTracks(3)
	q.EnqueueAll(tracks)

	if got := q.RemoveAt(-1); got != nil {
		t.Fatalf("RemoveAt(-1) = %v, want nil", got)
	}
	if got := q.RemoveAt(3); got != nil {
		t.Fatalf("RemoveAt(3) = %v, want nil", got)
	}
	if q.Len() != 3 {
		t.Fatalf("out-of-range removes changed the queue: len = %d", q.Len())
	}

	if got := q.RemoveAt(1); got != tracks[1] {
		t.Fatalf("RemoveAt(1) = %v, want %v", got, tracks[1])
	}

	remaining := q.Tracks()
	if len(remaining) != 2 || remaining[0] != tracks[0] || remaining[1] != tracks[2] {
		t.Fatalf("unexpected queue after removal: %v", remaining)
	}
}

func TestShufflePreservesContents(t *testing.T) {
	q := NewQueue()
	tracks := makeTracks(10)
	q.EnqueueAll(tracks)

	q.Shuffle()

	got := q.Tracks()
	if len(got) != len(tracks) {
		t.Fatalf("shuffled length = %d, want %d", len(got), len(tracks))
	}

	titles := make([]string, len(got))
	for i, tr := range got {
		titles[i] = tr.Title
	}
	sort.Strings(titles)
	for i := range titles {
		if titles[i] != fmt.Sprintf("track-%d", i) {
			t.Fatalf("shuffle changed the multiset: %v", titles)
		}
	}
}

func TestClearReturnsDropped(t *testing.T) {
	q := NewQueue()
	tracks := makeTracks(4)
	q.EnqueueAll(tracks)

	dropped := q.Clear()
	if len(dropped) != 4 {
		t.Fatalf("Clear returned %d tracks, want 4", len(dropped))
	}
	if q.Len() != 0 {
		t.Fatalf("queue length after clear = %d, want 0", q.Len())
	}
	if len(q.Clear()) != 0 {
		t.Fatal("second clear should return nothing")
	}
}

func TestHistoryCapsAndOrders(t *testing.T) {
	q := NewQueue()
	q.EnqueueAll(makeTracks(5))
	for q.DequeueNext() != nil {
	}

	got := q.History(3)
	if len(got) != 3 {
		t.Fatalf("History(3) returned %d entries", len(got))
	}
	for i, want := range []string{"track-2", "track-3", "track-4"} {
		if got[i].Title != want {
			t.Fatalf("History(3)[%d] = %q, want %q", i, got[i].Title, want)
		}
	}

	if all := q.History(0); len(all) != 5 {
		t.Fatalf("History(0) returned %d entries, want all 5", len(all))
	}
	if over := q.History(100); len(over) != 5 {
		t.Fatalf("History(100) returned %d entries, want 5", len(over))
	}
}

func TestCycleLoopMode(t *testing.T) {
	q := NewQueue()
	want := []LoopMode{LoopModeSingle, LoopModeAll, LoopModeNone}
	for i, mode := range want {
		if got := q.CycleLoopMode(); got != mode {
			t.Fatalf("cycle %d: got %v, want %v", i, got, mode)
		}
	}
}
