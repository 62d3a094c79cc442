package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CacheRoot determines the per-user cache directory for release metadata.
func CacheRoot() (string, error) {
	if override, ok := os.LookupEnv("PROTONGE_CACHE_DIR"); ok && override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolve PROTONGE_CACHE_DIR: %w", err)
		}
		return abs, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("detect user cache dir: %w", err)
	}
	return filepath.Join(base, "protonge"), nil
}

func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare cache directory: %w", err)
	}

	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
