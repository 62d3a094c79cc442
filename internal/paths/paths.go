package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// DefaultSteamRoot is used when neither a flag nor the settings file names one.
const DefaultSteamRoot = "~/.steam/steam"

// SteamPaths captures canonical locations inside a Steam installation.
type SteamPaths struct {
	Root        string
	SteamApps   string
	CompatTools string
	ConfigFile  string
	LibraryFile string
}

// Resolve expands the install root (flag value, then settings value, then the
// default) and derives the well-known files below it.
func Resolve(candidates ...string) (SteamPaths, error) {
	root := DefaultSteamRoot
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			root = strings.TrimSpace(c)
			break
		}
	}

	expanded, err := homedir.Expand(root)
	if err != nil {
		return SteamPaths{}, fmt.Errorf("expand steam root %q: %w", root, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return SteamPaths{}, fmt.Errorf("resolve steam root: %w", err)
	}
	return New(abs), nil
}

// New derives the layout for an already-absolute root.
func New(root string) SteamPaths {
	steamApps := filepath.Join(root, "steamapps")
	return SteamPaths{
		Root:        root,
		SteamApps:   steamApps,
		CompatTools: filepath.Join(root, "compatibilitytools.d"),
		ConfigFile:  filepath.Join(root, "config", "config.vdf"),
		LibraryFile: filepath.Join(steamApps, "libraryfolders.vdf"),
	}
}

// Library describes the per-library locations that hold application run data.
type Library struct {
	Root string
}

// CompatDataDir is the directory containing one subdirectory per application id.
func (l Library) CompatDataDir() string {
	return filepath.Join(l.Root, "steamapps", "compatdata")
}

// VersionFile is the marker file recording the tool version an app last ran with.
func (l Library) VersionFile(appID string) string {
	return filepath.Join(l.CompatDataDir(), appID, "version")
}

// AppManifest is the per-application manifest sitting beside compatdata.
func (l Library) AppManifest(appID string) string {
	return filepath.Join(l.Root, "steamapps", "appmanifest_"+appID+".acf")
}

// EnsureCompatTools creates the tools directory when Steam has not yet done so.
func (p SteamPaths) EnsureCompatTools() error {
	if err := os.MkdirAll(p.CompatTools, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", p.CompatTools, err)
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
