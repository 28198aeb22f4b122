package music

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// fakeResolver scripts resolver behavior per test. Materialize writes a real
// file so Fetch's existence checks pass.
type fakeResolver struct {
	cacheDir string

	info       *TrackInfo
	resolveErr error

	materialize func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error)

	resolveCalls     atomic.Int64
	materializeCalls atomic.Int64
	lowestCalls      atomic.Int64
}

func (r *fakeResolver) ResolveMetadata(ctx context.Context, query string) (*TrackInfo, error) {
	r.resolveCalls.Add(1)
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	return r.info, nil
}

func (r *fakeResolver) Materialize(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
	r.materializeCalls.Add(1)
	if quality == QualityLowest {
		r.lowestCalls.Add(1)
	}
	if r.materialize != nil {
		return r.materialize(ctx, info, quality, progress)
	}
	return r.writeMedia(info, quality)
}

func (r *fakeResolver) writeMedia(info *TrackInfo, quality Quality) (string, error) {
	name := info.ID + "." + info.Ext
	if quality == QualityLowest {
		name = info.ID + "_low." + info.Ext
	}
	path := filepath.Join(r.cacheDir, name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (r *fakeResolver) Search(ctx context.Context, query string, limit int) ([]*TrackInfo, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeResolver) ResolvePlaylist(ctx context.Context, url string, limit int) ([]*TrackInfo, error) {
	return nil, errors.New("not implemented")
}

func testInfo() *TrackInfo {
	return &TrackInfo{
		ID:         "abc123",
		Title:      "Test Song",
		WebpageURL: "https://example.com/watch?v=abc123",
		Ext:        "webm",
		Duration:   3 * time.Minute,
	}
}

func newTestFetcher(t *testing.T, r *fakeResolver) *Fetcher {
	t.Helper()
	f := NewFetcher(r, r.cacheDir, 2)
	f.MinBuffer = 10 * time.Second
	f.ReadyTimeout = 5 * time.Second
	f.BitrateKbps = 320
	return f
}

func TestFetchReadyAtBufferThreshold(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), info: testInfo()}
	r.materialize = func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
		// 320 kbps => 40000 bytes/second; 10s of media is 400000 bytes.
		progress(ProgressUpdate{Status: ProgressDownloading, DownloadedBytes: 100_000})
		progress(ProgressUpdate{Status: ProgressDownloading, DownloadedBytes: 400_000})
		progress(ProgressUpdate{Status: ProgressFinished})
		return r.writeMedia(info, quality)
	}

	f := newTestFetcher(t, r)
	track, err := f.Fetch(context.Background(), "test song")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if track.Title != "Test Song" {
		t.Errorf("track title = %q", track.Title)
	}
	if _, err := os.Stat(track.FilePath); err != nil {
		t.Errorf("track file missing: %v", err)
	}
	if got := r.lowestCalls.Load(); got != 0 {
		t.Errorf("fallback ran %d time(s) on a healthy fetch", got)
	}
}

func TestFetchStartsPlaybackWhileDownloadContinues(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), info: testInfo()}
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	partPath := filepath.Join(r.cacheDir, "abc123.webm.part")
	r.materialize = func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
		if err := os.WriteFile(partPath, []byte("partial media"), 0o644); err != nil {
			return "", err
		}
		progress(ProgressUpdate{Status: ProgressDownloading, DownloadedBytes: 400_000, TmpFilename: partPath})
		// The rest of the download outlives the caller's wait.
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		progress(ProgressUpdate{Status: ProgressFinished})
		return r.writeMedia(info, quality)
	}

	f := newTestFetcher(t, r)
	track, err := f.Fetch(context.Background(), "test song")
	if err != nil {
		t.Fatalf("Fetch failed while the download was still running: %v", err)
	}
	if track.FilePath != partPath {
		t.Errorf("track file = %q, want the in-progress %q", track.FilePath, partPath)
	}
	if track.Title != "Test Song" {
		t.Errorf("track title = %q", track.Title)
	}
	if got := r.lowestCalls.Load(); got != 0 {
		t.Errorf("fallback ran %d time(s) during a healthy buffered start", got)
	}
}

func TestFetchJobBufferThreshold(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), info: testInfo()}
	release := make(chan struct{})
	r.materialize = func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
		progress(ProgressUpdate{Status: ProgressDownloading, DownloadedBytes: 399_999})
		select {
		case <-release:
		case <-ctx.Done():
		}
		progress(ProgressUpdate{Status: ProgressDownloading, DownloadedBytes: 400_000})
		progress(ProgressUpdate{Status: ProgressFinished})
		return r.writeMedia(info, quality)
	}

	f := newTestFetcher(t, r)
	job := f.StartFetch(context.Background(), "test song", 0)

	select {
	case <-job.Ready():
		t.Fatal("job signalled ready below the buffer threshold")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-job.Ready():
	case <-time.After(time.Second):
		t.Fatal("job never signalled ready after crossing the threshold")
	}

	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job never terminated")
	}
}

func TestFetchJobErrorFiresBothSignals(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), resolveErr: errors.New("video unavailable")}

	f := newTestFetcher(t, r)
	job := f.StartFetch(context.Background(), "gone", 0)

	// A failed job must release waiters on both channels.
	select {
	case <-job.Ready():
	case <-time.After(10 * time.Second):
		t.Fatal("ready never fired for a failed job")
	}
	select {
	case <-job.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("done never fired for a failed job")
	}

	if job.Err() == nil {
		t.Fatal("failed job reported no error")
	}
	if got := r.resolveCalls.Load(); got != resolveAttempts {
		t.Errorf("resolve attempted %d time(s), want %d", got, resolveAttempts)
	}
}

func TestFetchTimeoutFallsBackOnce(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), info: testInfo()}
	r.materialize = func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
		if quality == QualityLowest {
			return r.writeMedia(info, quality)
		}
		// Primary download stalls below the threshold until cancelled.
		progress(ProgressUpdate{Status: ProgressDownloading, DownloadedBytes: 1000})
		<-ctx.Done()
		return "", ctx.Err()
	}

	f := newTestFetcher(t, r)
	f.ReadyTimeout = 100 * time.Millisecond

	track, err := f.Fetch(context.Background(), "slow song")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := r.lowestCalls.Load(); got != 1 {
		t.Fatalf("fallback ran %d time(s), want exactly 1", got)
	}
	if want := filepath.Join(r.cacheDir, "abc123_low.webm"); track.FilePath != want {
		t.Errorf("track file = %q, want the degraded-quality output %q", track.FilePath, want)
	}
}

func TestFetchFallbackFailureIsSingleError(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), info: testInfo()}
	r.materialize = func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
		return "", fmt.Errorf("extraction failed")
	}

	f := newTestFetcher(t, r)
	f.ReadyTimeout = 30 * time.Second

	_, err := f.Fetch(context.Background(), "broken")
	if err == nil {
		t.Fatal("Fetch succeeded with a broken resolver")
	}
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
	if got := r.lowestCalls.Load(); got != 1 {
		t.Errorf("fallback ran %d time(s), want exactly 1", got)
	}
}

func TestFetchUsesCachedMedia(t *testing.T) {
	dir := t.TempDir()
	info := testInfo()
	cached := filepath.Join(dir, info.ID+"."+info.Ext)
	if err := os.WriteFile(cached, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeResolver{cacheDir: dir, info: info}
	f := newTestFetcher(t, r)

	track, err := f.Fetch(context.Background(), "test song")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if track.FilePath != cached {
		t.Errorf("track file = %q, want the cached %q", track.FilePath, cached)
	}
	if got := r.materializeCalls.Load(); got != 0 {
		t.Errorf("Materialize ran %d time(s) despite a cache hit", got)
	}
}

func TestFetchReusesFallbackQualityCache(t *testing.T) {
	dir := t.TempDir()
	info := testInfo()
	cached := filepath.Join(dir, info.ID+"_low."+info.Ext)
	if err := os.WriteFile(cached, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &fakeResolver{cacheDir: dir, info: info}
	f := newTestFetcher(t, r)

	track, err := f.Fetch(context.Background(), "test song")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if track.FilePath != cached {
		t.Errorf("track file = %q, want the cached fallback %q", track.FilePath, cached)
	}
	if got := r.materializeCalls.Load(); got != 0 {
		t.Errorf("Materialize ran %d time(s) despite a degraded-quality cache hit", got)
	}
}

func TestFetchJobCancelDuringRetryBackoff(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), resolveErr: errors.New("temporary outage")}

	f := newTestFetcher(t, r)
	ctx, cancel := context.WithCancel(context.Background())
	job := f.StartFetch(ctx, "test song", 0)

	// Cancel while the job sits in its first retry backoff; it must terminate
	// promptly instead of sleeping out the full schedule.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-job.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cancelled job kept sleeping through its retry backoff")
	}

	if !errors.Is(job.Err(), context.Canceled) {
		t.Errorf("job error = %v, want context.Canceled", job.Err())
	}
}

func TestFetchContextCancellation(t *testing.T) {
	r := &fakeResolver{cacheDir: t.TempDir(), info: testInfo()}
	r.materialize = func(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	f := newTestFetcher(t, r)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := f.Fetch(ctx, "test song")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
