package tools

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"protonge/internal/version"
)

type tarEntry struct {
	name string
	body string
	link string
	dir  bool
}

func buildTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644}
		switch {
		case e.dir:
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func protonArchive(t *testing.T, tag string) []byte {
	return buildTarGz(t, []tarEntry{
		{name: tag + "/", dir: true},
		{name: tag + "/compatibilitytool.vdf", body: "\"compatibilitytools\"\n{\n}\n"},
		{name: tag + "/files/bin/wine", body: "#!/bin/sh\n"},
		{name: tag + "/files/bin/wine64", link: "wine"},
	})
}

type fakeGitHub struct {
	server    *httptest.Server
	latest    string
	archives  map[string][]byte
	apiHits   atomic.Int32
	downloads atomic.Int32
}

func newFakeGitHub(t *testing.T, latest string) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{latest: latest, archives: map[string][]byte{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/repos/"+DefaultRepo+"/releases/latest":
			f.apiHits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tag_name":"` + f.latest + `"}`))
		case strings.HasPrefix(r.URL.Path, "/"+DefaultRepo+"/releases/download/"):
			f.downloads.Add(1)
			name := filepath.Base(r.URL.Path)
			body, ok := f.archives[strings.TrimSuffix(name, ".tar.gz")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGitHub) installer(compatTools string) *Installer {
	return &Installer{
		CompatTools:  compatTools,
		APIBase:      f.server.URL,
		DownloadBase: f.server.URL,
		Client:       f.server.Client(),
	}
}

func TestInstallVersionExtractsIntoCompatTools(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton9-20")
	gh.archives["GE-Proton9-20"] = protonArchive(t, "GE-Proton9-20")
	compatTools := filepath.Join(t.TempDir(), "compatibilitytools.d")

	var lastDone int64
	inst := gh.installer(compatTools)
	inst.Progress = func(v string, done, total int64) {
		if v != "GE-Proton9-20" {
			t.Errorf("progress for %s", v)
		}
		lastDone = done
	}

	result, err := inst.Install(context.Background(), "9.20")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !result.Fetched || result.Version != "GE-Proton9-20" || result.Checksum == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if lastDone != int64(len(gh.archives["GE-Proton9-20"])) {
		t.Fatalf("expected progress to reach archive size, got %d", lastDone)
	}
	if _, err := os.Stat(filepath.Join(compatTools, "GE-Proton9-20", "compatibilitytool.vdf")); err != nil {
		t.Fatalf("descriptor missing: %v", err)
	}
	link, err := os.Readlink(filepath.Join(compatTools, "GE-Proton9-20", "files", "bin", "wine64"))
	if err != nil || link != "wine" {
		t.Fatalf("expected symlink to wine, got %q (%v)", link, err)
	}
	entries, _ := os.ReadDir(compatTools)
	if len(entries) != 1 {
		t.Fatalf("expected only the package dir, got %d entries", len(entries))
	}
	if gh.apiHits.Load() != 0 {
		t.Fatal("explicit version should not query the release API")
	}
}

func writePackage(t *testing.T, compatTools, dir, id string) string {
	t.Helper()
	pkgDir := filepath.Join(compatTools, dir)
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	descriptor := "\"compatibilitytools\"\n{\n\t\"compat_tools\"\n\t{\n\t\t\"" + id + "\"\n\t\t{\n\t\t}\n\t}\n}\n"
	if err := os.WriteFile(filepath.Join(pkgDir, "compatibilitytool.vdf"), []byte(descriptor), 0o644); err != nil {
		t.Fatal(err)
	}
	return pkgDir
}

func TestInstallAlreadyInstalledSkipsNetwork(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton9-20")
	compatTools := t.TempDir()
	writePackage(t, compatTools, "GE-Proton9-20", "GE-Proton9-20")

	result, err := gh.installer(compatTools).Install(context.Background(), "GE-Proton9-20")
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
	if result.Fetched || result.Dir != filepath.Join(compatTools, "GE-Proton9-20") {
		t.Fatalf("unexpected result %+v", result)
	}
	if gh.downloads.Load() != 0 || gh.apiHits.Load() != 0 {
		t.Fatal("expected no network access")
	}
}

func TestInstallMatchesDescriptorIdentifier(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton9-20")
	compatTools := t.TempDir()
	pkgDir := writePackage(t, compatTools, "proton-ge-9-20", "GE-Proton9-20")

	result, err := gh.installer(compatTools).Install(context.Background(), "9-20")
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
	if result.Dir != pkgDir {
		t.Fatalf("expected installed dir %s, got %s", pkgDir, result.Dir)
	}
	if gh.downloads.Load() != 0 {
		t.Fatalf("expected no download, got %d", gh.downloads.Load())
	}
	if _, err := os.Stat(filepath.Join(compatTools, "GE-Proton9-20")); !os.IsNotExist(err) {
		t.Fatal("expected no duplicate package dir")
	}
}

type fixedLocator map[string]string

func (l fixedLocator) PackageDir(id string) (string, bool) {
	dir, ok := l[id]
	return dir, ok
}

func TestInstallUsesCallerInventory(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton10-1")
	compatTools := t.TempDir()

	inst := gh.installer(compatTools)
	inst.Installed = fixedLocator{"GE-Proton10-1": "/elsewhere/GE-Proton10-1"}
	result, err := inst.Install(context.Background(), version.Latest)
	if !errors.Is(err, ErrAlreadyInstalled) {
		t.Fatalf("expected ErrAlreadyInstalled, got %v", err)
	}
	if result.Dir != "/elsewhere/GE-Proton10-1" || gh.downloads.Load() != 0 {
		t.Fatalf("unexpected result %+v with %d downloads", result, gh.downloads.Load())
	}
}

func TestInstallLatestUsesReleaseCache(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton10-1")
	gh.archives["GE-Proton10-1"] = protonArchive(t, "GE-Proton10-1")
	compatTools := t.TempDir()

	inst := gh.installer(compatTools)
	inst.CacheDir = t.TempDir()
	if _, err := inst.Install(context.Background(), version.Latest); err != nil {
		t.Fatalf("Install: %v", err)
	}
	got, err := inst.ResolveLatest(context.Background())
	if err != nil {
		t.Fatalf("ResolveLatest: %v", err)
	}
	if got != "GE-Proton10-1" {
		t.Fatalf("expected cached latest, got %s", got)
	}
	if gh.apiHits.Load() != 1 {
		t.Fatalf("expected one API call, got %d", gh.apiHits.Load())
	}
}

func TestReleaseCacheExpires(t *testing.T) {
	dir := t.TempDir()
	rc := releaseCache{Entries: map[string]releaseCacheEntry{
		DefaultRepo: {Repo: DefaultRepo, Version: "GE-Proton1-1", FetchedAt: time.Now().Add(-2 * releaseCacheTTL)},
	}}
	if err := writeJSONAtomic(filepath.Join(dir, releaseCacheFile), rc); err != nil {
		t.Fatal(err)
	}
	if _, ok := cachedLatestRelease(dir, DefaultRepo); ok {
		t.Fatal("expected expired entry to be ignored")
	}
}

func TestInstallTransferErrorLeavesNothing(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton9-20")
	compatTools := t.TempDir()

	_, err := gh.installer(compatTools).Install(context.Background(), "GE-Proton9-21")
	var transferErr *TransferError
	if !errors.As(err, &transferErr) || !strings.Contains(transferErr.Status, "404") {
		t.Fatalf("expected 404 TransferError, got %v", err)
	}
	entries, _ := os.ReadDir(compatTools)
	if len(entries) != 0 {
		t.Fatalf("expected empty compat tools dir, got %d entries", len(entries))
	}
}

func TestInstallRejectsEscapingArchive(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton9-20")
	gh.archives["GE-Proton9-20"] = buildTarGz(t, []tarEntry{{name: "../evil", body: "x"}})
	compatTools := t.TempDir()

	_, err := gh.installer(compatTools).Install(context.Background(), "GE-Proton9-20")
	if err == nil || !strings.Contains(err.Error(), "escapes destination") {
		t.Fatalf("expected escape error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(compatTools, "GE-Proton9-20")); !os.IsNotExist(err) {
		t.Fatalf("expected no package dir, got %v", err)
	}
}

func TestUntarRejectsSymlinkEscapes(t *testing.T) {
	outside := t.TempDir()
	cases := map[string][]tarEntry{
		"absolute link then write through it": {
			{name: "pkg/", dir: true},
			{name: "pkg/link", link: outside},
			{name: "pkg/link/evil", body: "x"},
		},
		"relative link climbing out": {
			{name: "pkg/up", link: "../../" + filepath.Base(outside)},
		},
		"write through an inside link": {
			{name: "pkg/sub/", dir: true},
			{name: "pkg/alias", link: "sub"},
			{name: "pkg/alias/file", body: "x"},
		},
		"link chain": {
			{name: "pkg/a/", dir: true},
			{name: "pkg/a/d", link: ".."},
			{name: "pkg/a/d/x", link: ".."},
		},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			dest := t.TempDir()
			archive := buildTarGz(t, entries)
			gz, err := gzip.NewReader(bytes.NewReader(archive))
			if err != nil {
				t.Fatal(err)
			}
			if err := untarStream(gz, dest); err == nil {
				t.Fatal("expected extraction to fail")
			}
			if _, err := os.Stat(filepath.Join(outside, "evil")); !os.IsNotExist(err) {
				t.Fatal("file written outside destination")
			}
		})
	}
}

func TestInstallInvalidVersion(t *testing.T) {
	gh := newFakeGitHub(t, "GE-Proton9-20")
	_, err := gh.installer(t.TempDir()).Install(context.Background(), "nine")
	var normErr *version.NormalizationError
	if !errors.As(err, &normErr) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
}

func TestPackageRootFlatArchive(t *testing.T) {
	staging := t.TempDir()
	for _, name := range []string{"proton", "version"} {
		if err := os.WriteFile(filepath.Join(staging, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	root, err := packageRoot(staging, "GE-Proton9-20")
	if err != nil || root != staging {
		t.Fatalf("expected staging dir as root, got %q (%v)", root, err)
	}
}
