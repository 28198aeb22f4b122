package music

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Janitor bounds the on-disk media cache by age and total size. It keeps no
// index: every sweep re-reads the directory, so files written by in-flight
// downloads are tolerated and picked up on a later pass.
type Janitor struct {
	dir      string
	maxBytes int64
	maxAge   time.Duration
}

func NewJanitor(dir string, maxBytes int64, maxAge time.Duration) *Janitor {
	return &Janitor{
		dir:      dir,
		maxBytes: maxBytes,
		maxAge:   maxAge,
	}
}

// Run sweeps once immediately and then at every interval tick until the
// context is cancelled.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.Sweep()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

type cacheFile struct {
	path    string
	size    int64
	modTime time.Time
}

// Sweep removes expired files first, then evicts oldest-first until the cache
// fits the byte budget. Individual deletion failures are logged and skipped.
// Returns the number of files removed.
func (j *Janitor) Sweep() int {
	removed := 0
	now := time.Now()

	files := j.scan()

	var kept []cacheFile
	for _, f := range files {
		if now.Sub(f.modTime) > j.maxAge {
			if err := os.Remove(f.path); err != nil {
				log.Printf("cache sweep: failed to remove %s: %v", f.path, err)
				kept = append(kept, f)
				continue
			}
			removed++
			continue
		}
		kept = append(kept, f)
	}

	var total int64
	for _, f := range kept {
		total += f.size
	}

	if total > j.maxBytes {
		sort.Slice(kept, func(a, b int) bool {
			return kept[a].modTime.Before(kept[b].modTime)
		})
		for _, f := range kept {
			if total <= j.maxBytes {
				break
			}
			if err := os.Remove(f.path); err != nil {
				log.Printf("cache sweep: failed to remove %s: %v", f.path, err)
				continue
			}
			removed++
			total -= f.size
		}
	}

	if removed > 0 {
		log.Printf("cache sweep removed %d file(s)", removed)
	}
	return removed
}

func (j *Janitor) scan() []cacheFile {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		log.Printf("cache sweep: failed to read %s: %v", j.dir, err)
		return nil
	}

	files := make([]cacheFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheFile{
			path:    filepath.Join(j.dir, entry.Name()),
			size:    fi.Size(),
			modTime: fi.ModTime(),
		})
	}
	return files
}
