package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"protonge/internal/paths"
)

// Steam builds a throwaway Steam installation on disk for tests.
type Steam struct {
	t     *testing.T
	Paths paths.SteamPaths
	libs  []string
}

// NewSteam creates an install root with the given extra library roots. The
// install root itself is always the first library.
func NewSteam(t *testing.T, extraLibraries ...string) *Steam {
	t.Helper()
	root := t.TempDir()
	s := &Steam{t: t, Paths: paths.New(root), libs: append([]string{root}, extraLibraries...)}
	s.writeLibraryFolders()
	mustMkdir(t, s.Paths.CompatTools)
	return s
}

func (s *Steam) writeLibraryFolders() {
	var b strings.Builder
	b.WriteString("\"libraryfolders\"\n{\n\t\"contentstatsid\"\t\t\"-1\"\n")
	for i, lib := range s.libs {
		fmt.Fprintf(&b, "\t\"%d\"\n\t{\n\t\t\"path\"\t\t\"%s\"\n\t\t\"label\"\t\t\"\"\n\t}\n", i, lib)
	}
	b.WriteString("}\n")
	WriteFile(s.t, s.Paths.LibraryFile, b.String())
}

// InstallTool creates a tool directory named dir whose descriptor declares id.
func (s *Steam) InstallTool(dir, id string) string {
	s.t.Helper()
	pkgDir := filepath.Join(s.Paths.CompatTools, dir)
	descriptor := fmt.Sprintf("\"compatibilitytools\"\n{\n\t\"compat_tools\"\n\t{\n\t\t\"%s\"\n\t\t{\n\t\t\t\"install_path\"\t\t\".\"\n\t\t\t\"display_name\"\t\t\"%s\"\n\t\t}\n\t}\n}\n", id, id)
	WriteFile(s.t, filepath.Join(pkgDir, "compatibilitytool.vdf"), descriptor)
	WriteFile(s.t, filepath.Join(pkgDir, "proton"), "#!/bin/sh\n")
	return pkgDir
}

// AddGame records that appID in library lib ran with marker. An empty marker
// skips the marker file; manifest=false skips the app manifest.
func (s *Steam) AddGame(lib int, appID, name, marker string, manifest bool) {
	s.t.Helper()
	l := paths.Library{Root: s.libs[lib]}
	mustMkdir(s.t, filepath.Join(l.CompatDataDir(), appID))
	if marker != "" {
		WriteFile(s.t, l.VersionFile(appID), marker+"\n")
	}
	if manifest {
		acf := fmt.Sprintf("\"AppState\"\n{\n\t\"appid\"\t\t\"%s\"\n\t\"name\"\t\t\"%s\"\n\t\"StateFlags\"\t\t\"4\"\n}\n", appID, name)
		WriteFile(s.t, l.AppManifest(appID), acf)
	}
}

// Library returns the root of library i.
func (s *Steam) Library(i int) paths.Library {
	return paths.Library{Root: s.libs[i]}
}

// WriteConfig writes config.vdf with a default version and per-app mapping.
func (s *Steam) WriteConfig(defaultVersion string, mapping map[string]string, order ...string) {
	s.t.Helper()
	var b strings.Builder
	b.WriteString("\"InstallConfigStore\"\n{\n\t\"Software\"\n\t{\n\t\t\"Valve\"\n\t\t{\n\t\t\t\"Steam\"\n\t\t\t{\n")
	b.WriteString("\t\t\t\t\"AutoUpdateWindowEnabled\"\t\t\"0\"\n")
	b.WriteString("\t\t\t\t\"CompatToolMapping\"\n\t\t\t\t{\n")
	writeMapping := func(id, name string) {
		fmt.Fprintf(&b, "\t\t\t\t\t\"%s\"\n\t\t\t\t\t{\n\t\t\t\t\t\t\"name\"\t\t\"%s\"\n\t\t\t\t\t\t\"config\"\t\t\"\"\n\t\t\t\t\t\t\"priority\"\t\t\"250\"\n\t\t\t\t\t}\n", id, name)
	}
	writeMapping("0", defaultVersion)
	for _, id := range order {
		writeMapping(id, mapping[id])
	}
	b.WriteString("\t\t\t\t}\n\t\t\t}\n\t\t}\n\t}\n}\n")
	WriteFile(s.t, s.Paths.ConfigFile, b.String())
}

// WriteFile writes content, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	mustMkdir(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadFile returns the file content or fails the test.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// WriteScript writes an executable shell script with the given body.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}
