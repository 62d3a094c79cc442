package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"protonge/internal/version"
)

type githubRelease struct {
	TagName string `json:"tag_name"`
}

// ResolveLatest returns the canonical identifier of the newest release. A
// fresh cached answer is used when available.
func (i *Installer) ResolveLatest(ctx context.Context) (string, error) {
	repo := i.repo()
	if cached, ok := cachedLatestRelease(i.CacheDir, repo); ok {
		i.logger().Debug("Using cached latest release", "version", cached.Version)
		return cached.Version, nil
	}

	tag, err := i.fetchLatestTag(ctx)
	if err != nil {
		return "", err
	}
	canonical, err := version.Normalize(tag)
	if err != nil {
		return "", fmt.Errorf("latest release tag: %w", err)
	}
	cacheLatestRelease(i.CacheDir, repo, Release{Version: canonical, URL: i.downloadURL(canonical)})
	return canonical, nil
}

func (i *Installer) fetchLatestTag(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(i.apiBase(), "/"), i.repo())
	i.logger().Debug("Resolving latest release", "url", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client().Do(req)
	if err != nil {
		return "", &TransferError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransferError{URL: endpoint, Status: resp.Status}
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("decode release: %w", err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("release metadata missing tag_name")
	}
	return release.TagName, nil
}

func (i *Installer) downloadURL(tag string) string {
	return fmt.Sprintf("%s/%s/releases/download/%s/%s.tar.gz", strings.TrimRight(i.downloadBase(), "/"), i.repo(), tag, tag)
}
