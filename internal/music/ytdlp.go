package music

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// YTDLPResolver shells out to yt-dlp for metadata extraction, search and
// media download.
type YTDLPResolver struct {
	Binary   string
	CacheDir string

	// PreferredTerms re-rank search results: entries whose title or
	// description contain any of the terms sort before those that do not.
	PreferredTerms []string
}

func NewYTDLPResolver(cacheDir string, preferredTerms []string) *YTDLPResolver {
	return &YTDLPResolver{
		Binary:         "yt-dlp",
		CacheDir:       cacheDir,
		PreferredTerms: preferredTerms,
	}
}

func (r *YTDLPResolver) ResolveMetadata(ctx context.Context, query string) (*TrackInfo, error) {
	target := strings.TrimSpace(query)
	if target == "" {
		return nil, fmt.Errorf("%w: empty input", ErrResolveFailed)
	}
	if !looksLikeURL(target) {
		target = "ytsearch1:" + target
	}

	args := []string{
		"--no-warnings",
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		target,
	}

	output, err := exec.CommandContext(ctx, r.Binary, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: yt-dlp failed: %v", ErrResolveFailed, err)
	}

	var root ytDLPItem
	if err := json.Unmarshal(output, &root); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrResolveFailed, err)
	}

	item, err := pickYTDLPItem(root)
	if err != nil {
		return nil, err
	}

	info := item.toTrackInfo()
	if info.ID == "" {
		return nil, fmt.Errorf("%w: missing track id", ErrResolveFailed)
	}
	return info, nil
}

// Materialize downloads into <cache>/<id>.<ext> (or the _low variant for the
// degraded-quality path). Download progress is observed by polling the
// materializing file's size, since yt-dlp writes through a .part file.
func (r *YTDLPResolver) Materialize(ctx context.Context, info *TrackInfo, quality Quality, progress func(ProgressUpdate)) (string, error) {
	if info == nil || info.ID == "" {
		return "", fmt.Errorf("%w: no metadata to materialize", ErrResolveFailed)
	}

	ext := info.Ext
	if ext == "" {
		ext = "webm"
	}

	format := "bestaudio/best"
	name := info.ID + "." + ext
	if quality == QualityLowest {
		format = "worstaudio/bestaudio"
		name = info.ID + "_low." + ext
	}
	outPath := filepath.Join(r.CacheDir, name)
	partPath := outPath + ".part"

	target := info.WebpageURL
	if target == "" {
		return "", fmt.Errorf("%w: missing track url", ErrResolveFailed)
	}

	args := []string{
		"--no-warnings",
		"--no-playlist",
		"-f", format,
		"-o", outPath,
		target,
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	if err := cmd.Start(); err != nil {
		emit(progress, ProgressUpdate{Status: ProgressError})
		return "", fmt.Errorf("%w: yt-dlp failed to start: %v", ErrResolveFailed, err)
	}

	pollDone := make(chan struct{})
	if progress != nil {
		go func() {
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-pollDone:
					return
				case <-ticker.C:
					if fi, err := os.Stat(partPath); err == nil {
						progress(ProgressUpdate{
							Status:          ProgressDownloading,
							DownloadedBytes: fi.Size(),
							TmpFilename:     partPath,
						})
					} else if fi, err := os.Stat(outPath); err == nil {
						progress(ProgressUpdate{
							Status:          ProgressDownloading,
							DownloadedBytes: fi.Size(),
							TmpFilename:     outPath,
						})
					}
				}
			}
		}()
	}

	err := cmd.Wait()
	close(pollDone)

	if err != nil {
		emit(progress, ProgressUpdate{Status: ProgressError})
		return "", fmt.Errorf("%w: yt-dlp download failed: %v", ErrResolveFailed, err)
	}

	finalPath := outPath
	if _, statErr := os.Stat(finalPath); statErr != nil {
		// yt-dlp may pick a different container than the metadata promised.
		matches, _ := filepath.Glob(filepath.Join(r.CacheDir, strings.TrimSuffix(name, "."+ext)+".*"))
		for _, m := range matches {
			if !strings.HasSuffix(m, ".part") {
				finalPath = m
				break
			}
		}
		if _, statErr := os.Stat(finalPath); statErr != nil {
			emit(progress, ProgressUpdate{Status: ProgressError})
			return "", fmt.Errorf("%w: no local file materialized", ErrResolveFailed)
		}
	}

	emit(progress, ProgressUpdate{Status: ProgressFinished, Filename: finalPath})
	return finalPath, nil
}

func (r *YTDLPResolver) Search(ctx context.Context, query string, limit int) ([]*TrackInfo, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty input", ErrResolveFailed)
	}

	if limit <= 0 {
		limit = 5
	}
	if limit > 10 {
		limit = 10
	}

	target := fmt.Sprintf("ytsearch%d:%s", limit, query)
	items, err := r.dumpEntries(ctx, target, limit, true)
	if err != nil {
		return nil, err
	}

	results := make([]*TrackInfo, 0, len(items))
	for _, item := range items {
		results = append(results, item.toTrackInfo())
	}

	r.rankResults(results)
	return results, nil
}

func (r *YTDLPResolver) ResolvePlaylist(ctx context.Context, playlistURL string, limit int) ([]*TrackInfo, error) {
	if !looksLikeURL(playlistURL) {
		return nil, fmt.Errorf("%w: not a playlist url", ErrResolveFailed)
	}
	if limit <= 0 {
		limit = 10
	}

	items, err := r.dumpEntries(ctx, playlistURL, limit, false)
	if err != nil {
		return nil, err
	}

	results := make([]*TrackInfo, 0, len(items))
	for _, item := range items {
		results = append(results, item.toTrackInfo())
	}
	return results, nil
}

// rankResults moves entries matching a preferred term ahead of the rest,
// keeping relative order within each group stable.
func (r *YTDLPResolver) rankResults(results []*TrackInfo) {
	if len(r.PreferredTerms) == 0 {
		return
	}

	score := func(info *TrackInfo) int {
		title := strings.ToLower(info.Title)
		for _, term := range r.PreferredTerms {
			if strings.Contains(title, strings.ToLower(term)) {
				return 0
			}
		}
		return 1
	}

	sort.SliceStable(results, func(i, j int) bool {
		return score(results[i]) < score(results[j])
	})
}

func (r *YTDLPResolver) dumpEntries(ctx context.Context, target string, limit int, flat bool) ([]ytDLPItem, error) {
	args := []string{
		"--no-warnings",
		"--dump-single-json",
		"--skip-download",
	}
	if flat {
		args = append(args, "--no-playlist", "--flat-playlist")
	} else {
		args = append(args, "--yes-playlist", "--flat-playlist")
	}
	args = append(args, target)

	output, err := exec.CommandContext(ctx, r.Binary, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: yt-dlp failed: %v", ErrResolveFailed, err)
	}

	var root ytDLPItem
	if err := json.Unmarshal(output, &root); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrResolveFailed, err)
	}

	return pickYTDLPItems(root, limit)
}

func emit(progress func(ProgressUpdate), update ProgressUpdate) {
	if progress != nil {
		progress(update)
	}
}

type ytDLPItem struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	FullTitle   string      `json:"fulltitle"`
	Description string      `json:"description"`
	WebpageURL  string      `json:"webpage_url"`
	URL         string      `json:"url"`
	Ext         string      `json:"ext"`
	Duration    float64     `json:"duration"`
	Thumbnail   string      `json:"thumbnail"`
	Entries     []ytDLPItem `json:"entries"`
}

func (item ytDLPItem) toTrackInfo() *TrackInfo {
	link := item.WebpageURL
	if link == "" {
		link = item.URL
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = strings.TrimSpace(item.FullTitle)
	}
	if title == "" {
		title = "Unknown"
	}

	duration := time.Duration(item.Duration * float64(time.Second))
	if duration < 0 {
		duration = 0
	}

	return &TrackInfo{
		ID:         item.ID,
		Title:      title,
		WebpageURL: link,
		Thumbnail:  item.Thumbnail,
		Ext:        item.Ext,
		Duration:   duration,
	}
}

func pickYTDLPItem(root ytDLPItem) (ytDLPItem, error) {
	if len(root.Entries) == 0 {
		return root, nil
	}

	for _, entry := range root.Entries {
		if entry.WebpageURL != "" || entry.URL != "" || entry.Title != "" {
			return entry, nil
		}
	}

	return ytDLPItem{}, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
}

func pickYTDLPItems(root ytDLPItem, limit int) ([]ytDLPItem, error) {
	if limit <= 0 {
		limit = 1
	}

	if len(root.Entries) == 0 {
		if root.WebpageURL != "" || root.URL != "" || root.Title != "" {
			return []ytDLPItem{root}, nil
		}
		return nil, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
	}

	items := make([]ytDLPItem, 0, limit)
	for _, entry := range root.Entries {
		if entry.WebpageURL == "" && entry.URL == "" && entry.Title == "" {
			continue
		}
		items = append(items, entry)
		if len(items) >= limit {
			break
		}
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no usable entries", ErrResolveFailed)
	}

	return items, nil
}

func looksLikeURL(value string) bool {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return true
	}

	u, err := url.Parse(value)
	return err == nil && u.Scheme != "" && u.Host != ""
}
