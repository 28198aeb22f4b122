package music

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultMinBufferSeconds = 10
	DefaultFetchTimeout     = 60 * time.Second
	DefaultMaxFetches       = 5
	DefaultBitrateKbps      = 320

	resolveAttempts     = 3
	resolveInitialDelay = time.Second
)

// Fetcher turns queries into playable Tracks by resolving metadata and
// progressively downloading media. At most MaxFetches downloads run at once
// across the whole process; excess requests wait on the slot channel in FIFO
// order.
type Fetcher struct {
	resolver Resolver
	cacheDir string
	slots    chan struct{}

	// MinBuffer is how much estimated audio must be on disk before a job
	// signals readiness.
	MinBuffer time.Duration

	// ReadyTimeout bounds how long Fetch waits for readiness before switching
	// to the degraded-quality fallback.
	ReadyTimeout time.Duration

	// BitrateKbps is the assumed stream bitrate used to convert downloaded
	// bytes into estimated buffered seconds. A fixed estimate; real streams
	// at lower or variable bitrates make the threshold conservative or
	// optimistic accordingly.
	BitrateKbps int
}

func NewFetcher(resolver Resolver, cacheDir string, maxFetches int) *Fetcher {
	if maxFetches < 1 {
		maxFetches = DefaultMaxFetches
	}
	return &Fetcher{
		resolver:     resolver,
		cacheDir:     cacheDir,
		slots:        make(chan struct{}, maxFetches),
		MinBuffer:    DefaultMinBufferSeconds * time.Second,
		ReadyTimeout: DefaultFetchTimeout,
		BitrateKbps:  DefaultBitrateKbps,
	}
}

// Resolver exposes the underlying metadata/search service.
func (f *Fetcher) Resolver() Resolver { return f.resolver }

// FetchJob is one in-flight resolve+download. Ready fires once when enough
// media is buffered to start playback, or on any terminal outcome; Done fires
// once when the job has fully terminated. Terminal outcomes fire both, so a
// waiter can never hang on a job that failed.
type FetchJob struct {
	query          string
	minBuffer      time.Duration
	bytesPerSecond int64

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	cancel context.CancelFunc

	mu       sync.Mutex
	info     *TrackInfo
	filePath string
	tmpPath  string
	err      error
}

func (j *FetchJob) Ready() <-chan struct{} { return j.ready }
func (j *FetchJob) Done() <-chan struct{}  { return j.done }

// Cancel abandons the job. Best effort: the underlying transfer may not stop
// promptly, but the job's output will never be used.
func (j *FetchJob) Cancel() { j.cancel() }

func (j *FetchJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *FetchJob) result() (*TrackInfo, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info, j.filePath
}

func (j *FetchJob) setResult(info *TrackInfo, path string) {
	j.mu.Lock()
	j.info = info
	j.filePath = path
	j.mu.Unlock()
}

func (j *FetchJob) setInfo(info *TrackInfo) {
	j.mu.Lock()
	j.info = info
	j.mu.Unlock()
}

// materializing returns the in-progress download file last reported by the
// resolver, for playback that starts before the download completes.
func (j *FetchJob) materializing() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tmpPath
}

func (j *FetchJob) setErr(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
}

func (j *FetchJob) signalReady() {
	j.readyOnce.Do(func() { close(j.ready) })
}

// signalTerminal marks the job finished. Fires both signals; either may have
// fired already, which is a no-op.
func (j *FetchJob) signalTerminal() {
	j.signalReady()
	j.doneOnce.Do(func() { close(j.done) })
}

// progressHook converts byte counts into estimated buffered seconds and fires
// readiness at the threshold.
func (j *FetchJob) progressHook(update ProgressUpdate) {
	switch update.Status {
	case ProgressDownloading:
		if update.TmpFilename != "" {
			j.mu.Lock()
			j.tmpPath = update.TmpFilename
			j.mu.Unlock()
		}
		buffered := time.Duration(update.DownloadedBytes/j.bytesPerSecond) * time.Second
		if buffered >= j.minBuffer {
			j.signalReady()
		}
	case ProgressFinished, ProgressError:
		j.signalTerminal()
	}
}

// StartFetch begins an asynchronous resolve+download for the query and
// returns immediately. minBuffer <= 0 uses the fetcher default.
func (f *Fetcher) StartFetch(ctx context.Context, query string, minBuffer time.Duration) *FetchJob {
	if minBuffer <= 0 {
		minBuffer = f.MinBuffer
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &FetchJob{
		query:          query,
		minBuffer:      minBuffer,
		bytesPerSecond: int64(f.BitrateKbps) * 1000 / 8,
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		cancel:         cancel,
	}

	go f.run(jobCtx, job)
	return job
}

func (f *Fetcher) run(ctx context.Context, job *FetchJob) {
	defer job.signalTerminal()

	select {
	case f.slots <- struct{}{}:
	case <-ctx.Done():
		job.setErr(ctx.Err())
		return
	}
	defer func() { <-f.slots }()

	delay := resolveInitialDelay
	var lastErr error
	for attempt := 1; attempt <= resolveAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			job.setErr(err)
			return
		}

		info, err := f.resolver.ResolveMetadata(ctx, job.query)
		if err != nil {
			lastErr = err
			log.Printf("fetch attempt %d/%d failed: %v", attempt, resolveAttempts, err)
			if attempt < resolveAttempts {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					job.setErr(ctx.Err())
					return
				}
				delay *= 2
			}
			continue
		}

		// A same-identity file already in the cache skips the download and is
		// immediately ready.
		if cached := f.cachedPath(info); cached != "" {
			log.Printf("using cached media for %s", info.ID)
			job.setResult(info, cached)
			job.signalReady()
			return
		}

		// Metadata is final before the download starts, so a waiter woken by
		// the buffer threshold can build a Track while bytes still stream in.
		job.setInfo(info)

		path, err := f.resolver.Materialize(ctx, info, QualityBest, job.progressHook)
		if err != nil {
			lastErr = err
			log.Printf("fetch attempt %d/%d failed: %v", attempt, resolveAttempts, err)
			if attempt < resolveAttempts {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					job.setErr(ctx.Err())
					return
				}
				delay *= 2
			}
			continue
		}

		job.setResult(info, path)
		return
	}

	job.setErr(fmt.Errorf("%w: %v", ErrFetchFailed, lastErr))
}

// cachedPath reports a playable same-identity file already in the cache. A
// degraded-quality variant from an earlier fallback counts: re-downloading a
// track the cache already holds wastes a fetch slot.
func (f *Fetcher) cachedPath(info *TrackInfo) string {
	if info == nil || info.ID == "" || info.Ext == "" {
		return ""
	}
	for _, name := range []string{info.ID + "." + info.Ext, info.ID + "_low." + info.Ext} {
		path := filepath.Join(f.cacheDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Fetch resolves the query into a playable Track, waiting up to ReadyTimeout
// for enough media to buffer. On timeout or a failed primary download it
// cancels the job and tries the degraded-quality fallback exactly once;
// failure of the fallback surfaces as a single ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, query string) (*Track, error) {
	job := f.StartFetch(ctx, query, 0)

	timer := time.NewTimer(f.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		job.Cancel()
		return nil, ctx.Err()
	case <-timer.C:
		log.Printf("buffer wait timed out for %q, retrying at lowest quality", query)
		job.Cancel()
		return f.fallback(ctx, query)
	case <-job.Ready():
	}

	if err := job.Err(); err != nil {
		log.Printf("fetch failed for %q (%v), retrying at lowest quality", query, err)
		job.Cancel()
		return f.fallback(ctx, query)
	}

	info, path := job.result()
	if path == "" {
		// Readiness beat completion: play the file the download is still
		// writing. It may be renamed when the download finishes; the open
		// handle survives the rename and the leftover is the janitor's.
		path = job.materializing()
	}
	if info == nil || path == "" {
		return nil, fmt.Errorf("%w: no local file materialized", ErrFetchFailed)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: no local file materialized", ErrFetchFailed)
	}

	return trackFromInfo(info, path), nil
}

// fallback is the single degraded-quality path shared by the timeout and the
// failed-download triggers. Its output file naming is distinct, so it never
// races the abandoned primary download.
func (f *Fetcher) fallback(ctx context.Context, query string) (*Track, error) {
	info, err := f.resolver.ResolveMetadata(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: lowest-quality fallback: %v", ErrFetchFailed, err)
	}

	path, err := f.resolver.Materialize(ctx, info, QualityLowest, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: lowest-quality fallback: %v", ErrFetchFailed, err)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: lowest-quality fallback produced no file", ErrFetchFailed)
	}

	return trackFromInfo(info, path), nil
}

func trackFromInfo(info *TrackInfo, path string) *Track {
	title := info.Title
	if title == "" {
		title = "Unknown"
	}
	return &Track{
		Title:     title,
		SourceURL: info.WebpageURL,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		FilePath:  path,
	}
}
