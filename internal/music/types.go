package music

import (
	"errors"
	"log"
	"os"
	"sync"
	"time"
)

var (
	ErrFetchFailed    = errors.New("failed to fetch track")
	ErrResolveFailed  = errors.New("failed to resolve track metadata")
	ErrVoiceConnect   = errors.New("voice connection unobtainable")
	ErrTransportStart = errors.New("audio transport failed to start")
)

type LoopMode string

const (
	LoopModeNone   LoopMode = "none"
	LoopModeSingle LoopMode = "single"
	LoopModeAll    LoopMode = "all"
)

// Cycle returns the next mode in the none -> single -> all -> none rotation.
func (m LoopMode) Cycle() LoopMode {
	switch m {
	case LoopModeNone:
		return LoopModeSingle
	case LoopModeSingle:
		return LoopModeAll
	default:
		return LoopModeNone
	}
}

// Track is a resolved, playable unit. The metadata fields never change after
// resolution; the only mutable aspect is the local file lifecycle, which
// Cleanup terminates exactly once.
type Track struct {
	Title     string
	SourceURL string
	Thumbnail string
	Duration  time.Duration
	FilePath  string

	cleanup sync.Once
}

// Cleanup removes the track's local file. Safe to call more than once; only
// the first call deletes.
func (t *Track) Cleanup() {
	t.cleanup.Do(func() {
		if t.FilePath == "" {
			return
		}
		if err := os.Remove(t.FilePath); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to remove track file %s: %v", t.FilePath, err)
		}
	})
}

type HistoryEntry struct {
	Title    string
	PlayedAt time.Time
}

// NowPlaying is the snapshot published for the current track. Elapsed is
// wall-clock derived, so it keeps moving through decoder stalls and may drift
// from the true audio position.
type NowPlaying struct {
	Title     string
	Duration  time.Duration
	Elapsed   time.Duration
	StartedAt time.Time
}
