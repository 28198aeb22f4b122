package music

import (
	"context"
	"time"
)

type Quality string

const (
	// QualityBest downloads the best available audio into <cache>/<id>.<ext>.
	QualityBest Quality = "best"
	// QualityLowest is the degraded fallback; its output uses the distinct
	// <cache>/<id>_low.<ext> naming so it never collides with a partial
	// best-quality download of the same track.
	QualityLowest Quality = "lowest"
)

type ProgressStatus string

const (
	ProgressDownloading ProgressStatus = "downloading"
	ProgressFinished    ProgressStatus = "finished"
	ProgressError       ProgressStatus = "error"
)

type ProgressUpdate struct {
	Status          ProgressStatus
	DownloadedBytes int64
	TmpFilename     string
	Filename        string
}

// TrackInfo is the resolver's view of a track before it is materialized.
type TrackInfo struct {
	ID         string
	Title      string
	WebpageURL string
	Thumbnail  string
	Ext        string
	Duration   time.Duration
}

// Resolver turns a query or URL into track metadata and local media files.
// Implementations wrap an external extraction engine; the rest of the system
// only depends on this contract.
type Resolver interface {
	// ResolveMetadata resolves a URL or search text to a single track's
	// metadata without downloading media.
	ResolveMetadata(ctx context.Context, query string) (*TrackInfo, error)

	// Materialize downloads the track's media into the cache directory and
	// returns the local file path. Progress may be nil. Updates are emitted
	// while downloading and exactly one terminal update (finished or error)
	// is emitted before Materialize returns.
	Materialize(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error)

	// Search returns up to limit candidate tracks for a text query.
	Search(ctx context.Context, query string, limit int) ([]*TrackInfo, error)

	// ResolvePlaylist expands a playlist URL into the metadata of its
	// entries, capped at limit.
	ResolvePlaylist(ctx context.Context, url string, limit int) ([]*TrackInfo, error)
}
