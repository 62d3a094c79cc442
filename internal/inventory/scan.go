package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"protonge/internal/logx"
	"protonge/internal/paths"
	"protonge/internal/vdf"
	"protonge/internal/version"
)

const (
	stageLibraries = "libraries"
	stageTools     = "tools"
	stageUsage     = "usage"

	toolDescriptor = "compatibilitytool.vdf"
)

// Scanner reads Steam's on-disk state. It never writes.
type Scanner struct {
	Paths  paths.SteamPaths
	Policy ScanPolicy
	Logger *slog.Logger
}

// Scan builds an Inventory from the library manifest, the tools directory and
// every library's compatdata.
func (s Scanner) Scan() (Inventory, error) {
	logger := s.Logger
	if logger == nil {
		logger = logx.Discard()
	}

	logger.Info("Reading Steam libraries...")
	libraries, err := readLibraries(s.Paths.LibraryFile, logger)
	if err != nil {
		return Inventory{}, err
	}

	logger.Info("Finding installed compatibility tools...")
	installed, err := ReadInstalled(s.Paths.CompatTools, logger)
	if err != nil {
		return Inventory{}, err
	}

	logger.Info("Looking for versions currently in use")
	usage := NewUsageStats()
	for _, lib := range libraries {
		if err := s.readUsage(lib, usage, logger); err != nil {
			return Inventory{}, err
		}
	}

	return Inventory{Libraries: libraries, Installed: installed, Usage: usage}, nil
}

func readLibraries(path string, logger *slog.Logger) ([]paths.Library, error) {
	doc, err := vdf.Load(path)
	if err != nil {
		return nil, &ScanError{Stage: stageLibraries, Path: path, Err: err}
	}
	folders, err := doc.MapAt("libraryfolders")
	if err != nil {
		return nil, &ScanError{Stage: stageLibraries, Path: path, Err: err}
	}

	var libs []paths.Library
	for _, entry := range folders.Entries() {
		// Newer manifests mix scalar metadata such as contentstatsid in with the folders.
		if entry.Node.Kind() != vdf.KindMap {
			continue
		}
		root, err := entry.Node.StringAt("path")
		if err != nil {
			return nil, &ScanError{Stage: stageLibraries, Path: path, Err: fmt.Errorf("library %s: %w", entry.Key, err)}
		}
		logger.Debug("Found library", "path", root)
		libs = append(libs, paths.Library{Root: root})
	}
	return libs, nil
}

// ReadInstalled lists the packages in a compatibility tools directory, each
// identified by the first key of its descriptor. Hidden directories such as
// in-progress install staging areas are ignored.
func ReadInstalled(dir string, logger *slog.Logger) ([]Package, error) {
	if logger == nil {
		logger = logx.Discard()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("No compatibility tools directory", "path", dir)
			return nil, nil
		}
		return nil, &ScanError{Stage: stageTools, Path: dir, Err: err}
	}

	var out []Package
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		pkgDir := filepath.Join(dir, entry.Name())
		descriptor := filepath.Join(pkgDir, toolDescriptor)
		doc, err := vdf.Load(descriptor)
		if err != nil {
			return nil, &ScanError{Stage: stageTools, Path: descriptor, Err: err}
		}
		tools, err := doc.MapAt("compatibilitytools", "compat_tools")
		if err != nil {
			return nil, &ScanError{Stage: stageTools, Path: descriptor, Err: err}
		}
		keys := tools.Keys()
		if len(keys) == 0 {
			return nil, &ScanError{Stage: stageTools, Path: descriptor, Err: errors.New("no compat_tools entry")}
		}
		logger.Debug("Found compatibility tool", "id", keys[0], "dir", pkgDir)
		out = append(out, Package{ID: keys[0], Dir: pkgDir})
	}
	return out, nil
}

func (s Scanner) readUsage(lib paths.Library, usage *UsageStats, logger *slog.Logger) error {
	compatData := lib.CompatDataDir()
	entries, err := os.ReadDir(compatData)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && s.Policy == SkipMissing {
			return nil
		}
		return &ScanError{Stage: stageUsage, Path: compatData, Err: err}
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		appID := entry.Name()

		marker, ok, err := s.readMarker(lib.VersionFile(appID))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		manifestPath := lib.AppManifest(appID)
		manifest, ok, err := s.readManifest(manifestPath)
		if err != nil {
			return err
		}
		if !ok || !version.IsCanonical(marker) {
			continue
		}

		name, err := manifest.StringAt("AppState", "name")
		if err != nil {
			return &ScanError{Stage: stageUsage, Path: manifestPath, Err: err}
		}
		id, err := manifest.StringAt("AppState", "appid")
		if err != nil {
			return &ScanError{Stage: stageUsage, Path: manifestPath, Err: err}
		}
		logger.Debug(fmt.Sprintf("%s is currently used by %s", marker, name))
		usage.Add(UsageRecord{Version: marker, Name: name, AppID: id, Library: lib.Root})
	}
	return nil
}

// readMarker returns the first token of the version marker file.
func (s Scanner) readMarker(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && s.Policy == SkipMissing {
			return "", false, nil
		}
		return "", false, &ScanError{Stage: stageUsage, Path: path, Err: err}
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", true, nil
	}
	return fields[0], true, nil
}

func (s Scanner) readManifest(path string) (*vdf.Node, bool, error) {
	doc, err := vdf.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && s.Policy == SkipMissing {
			return nil, false, nil
		}
		return nil, false, &ScanError{Stage: stageUsage, Path: path, Err: err}
	}
	return doc, true, nil
}
