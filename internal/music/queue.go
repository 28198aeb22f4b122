package music

import (
	"math/rand"
	"sync"
	"time"
)

// Queue holds one room's pending tracks plus its loop mode, playback history
// and play counter. All methods are safe for concurrent use; the room's
// controller is the only writer in practice, but command handlers read
// snapshots concurrently.
type Queue struct {
	mu        sync.Mutex
	pending   []*Track
	history   []HistoryEntry
	playCount int
	loopMode  LoopMode
}

func NewQueue() *Queue {
	return &Queue{loopMode: LoopModeNone}
}

func (q *Queue) Enqueue(track *Track) {
	if track == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, track)
}

// EnqueueAll appends tracks preserving their order. Nil entries are skipped.
func (q *Queue) EnqueueAll(tracks []*Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range tracks {
		if t != nil {
			q.pending = append(q.pending, t)
		}
	}
}

// DequeueNext removes and returns the head, or nil when empty. Under loop
// mode single or all the dequeued track is re-appended to the tail first, so
// the caller still receives a logically removed head. Every successful
// dequeue records history and bumps the play counter, loop replays included.
func (q *Queue) DequeueNext() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	track := q.pending[0]
	q.pending = q.pending[1:]

	if q.loopMode == LoopModeSingle || q.loopMode == LoopModeAll {
		q.pending = append(q.pending, track)
	}

	q.history = append(q.history, HistoryEntry{Title: track.Title, PlayedAt: time.Now().UTC()})
	q.playCount++
	return track
}

func (q *Queue) Clear() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.pending
	q.pending = nil
	return dropped
}

// Shuffle applies a uniform random permutation to the pending tracks.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.pending), func(i, j int) {
		q.pending[i], q.pending[j] = q.pending[j], q.pending[i]
	})
}

// RemoveAt removes the track at the 0-based index. Out-of-range indices
// return nil and leave the queue untouched.
func (q *Queue) RemoveAt(index int) *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.pending) {
		return nil
	}

	removed := q.pending[index]
	q.pending = append(q.pending[:index], q.pending[index+1:]...)
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Tracks returns a snapshot of the pending sequence.
func (q *Queue) Tracks() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Track, len(q.pending))
	copy(out, q.pending)
	return out
}

// History returns up to the last n played entries, oldest first. Retention is
// unbounded; only the returned slice is capped.
func (q *Queue) History(n int) []HistoryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > len(q.history) {
		n = len(q.history)
	}
	out := make([]HistoryEntry, n)
	copy(out, q.history[len(q.history)-n:])
	return out
}

func (q *Queue) PlayCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playCount
}

func (q *Queue) LoopMode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loopMode
}

func (q *Queue) SetLoopMode(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loopMode = mode
}

// CycleLoopMode advances the loop mode and returns the new value.
func (q *Queue) CycleLoopMode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loopMode = q.loopMode.Cycle()
	return q.loopMode
}
