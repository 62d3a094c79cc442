package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	releaseCacheFile = "release_cache.json"
	releaseCacheTTL  = 1 * time.Hour
)

type releaseCacheEntry struct {
	Repo      string    `json:"repo"`
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

type releaseCache struct {
	Entries map[string]releaseCacheEntry `json:"entries"`
}

func loadReleaseCache(dir string) releaseCache {
	empty := releaseCache{Entries: map[string]releaseCacheEntry{}}
	if dir == "" {
		return empty
	}
	data, err := os.ReadFile(filepath.Join(dir, releaseCacheFile))
	if err != nil {
		return empty
	}
	var rc releaseCache
	if err := json.Unmarshal(data, &rc); err != nil {
		return empty
	}
	if rc.Entries == nil {
		rc.Entries = map[string]releaseCacheEntry{}
	}
	return rc
}

// cachedLatestRelease returns the cached latest release for repo if it has not expired.
func cachedLatestRelease(dir, repo string) (Release, bool) {
	rc := loadReleaseCache(dir)
	entry, ok := rc.Entries[repo]
	if !ok {
		return Release{}, false
	}
	if time.Since(entry.FetchedAt) > releaseCacheTTL {
		return Release{}, false
	}
	return Release{Version: entry.Version, URL: entry.URL}, true
}

// cacheLatestRelease records rel. Failures are ignored; the cache is advisory.
func cacheLatestRelease(dir, repo string, rel Release) {
	if dir == "" {
		return
	}
	rc := loadReleaseCache(dir)
	rc.Entries[repo] = releaseCacheEntry{
		Repo:      repo,
		Version:   rel.Version,
		URL:       rel.URL,
		FetchedAt: time.Now(),
	}
	_ = writeJSONAtomic(filepath.Join(dir, releaseCacheFile), rc)
}
