package cli

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"protonge/internal/testutil"
	"protonge/internal/tools"
	"protonge/internal/vdf"
)

// resetGlobals restores every flag variable after the test and points the
// settings file at an empty location.
func resetGlobals(t *testing.T, steam *testutil.Steam) {
	t.Helper()
	saved := []any{steamInstallPath, configPath, debugLogs, errorLogs, veryQuiet, dryRun, outputJSON, noProgress, logDir,
		installLatest, installVersion, installScript,
		updateGames, updateDefault, updateLatest, updateVersion, updateExclude, updateExcludeRegex, updateRestart, updateScript,
		deleteKeep, deleteYes, testScript}
	prevInstaller, prevController := newInstaller, newController
	t.Cleanup(func() {
		steamInstallPath, configPath = saved[0].(string), saved[1].(string)
		debugLogs, errorLogs, veryQuiet = saved[2].(bool), saved[3].(bool), saved[4].(bool)
		dryRun, outputJSON, noProgress = saved[5].(bool), saved[6].(bool), saved[7].(bool)
		logDir = saved[8].(string)
		installLatest, installVersion, installScript = saved[9].(bool), saved[10].(string), saved[11].(string)
		updateGames, updateDefault, updateLatest = saved[12].(bool), saved[13].(bool), saved[14].(bool)
		updateVersion, updateExclude = saved[15].(string), saved[16].([]string)
		updateExcludeRegex, updateRestart, updateScript = saved[17].(string), saved[18].(bool), saved[19].(string)
		deleteKeep, deleteYes, testScript = saved[20].(int), saved[21].(bool), saved[22].(string)
		newInstaller, newController = prevInstaller, prevController
	})

	steamInstallPath = steam.Paths.Root
	configPath = filepath.Join(t.TempDir(), "config.yaml")
	debugLogs, errorLogs, veryQuiet = false, false, false
	dryRun, outputJSON, noProgress = false, false, true
	logDir = ""
	t.Setenv("PROTONGE_CACHE_DIR", t.TempDir())
}

func run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func fixture(t *testing.T) *testutil.Steam {
	t.Helper()
	steam := testutil.NewSteam(t)
	steam.InstallTool("GE-Proton9-1", "GE-Proton9-1")
	steam.InstallTool("GE-Proton8-32", "GE-Proton8-32")
	steam.InstallTool("GE-Proton7-55", "GE-Proton7-55")
	steam.AddGame(0, "123", "Default Follower", "GE-Proton9-1", true)
	steam.AddGame(0, "500", "Pinned Game", "GE-Proton8-32", true)
	steam.AddGame(0, "600", "Beta Build", "GE-Proton8-32", true)
	steam.WriteConfig("GE-Proton9-1", map[string]string{"123": "GE-Proton9-1", "500": "GE-Proton8-32", "600": "GE-Proton8-32"}, "123", "500", "600")
	return steam
}

func mappingName(t *testing.T, steam *testutil.Steam, appID string) string {
	t.Helper()
	doc, err := vdf.Load(steam.Paths.ConfigFile)
	if err != nil {
		t.Fatal(err)
	}
	name, err := doc.StringAt("InstallConfigStore", "Software", "Valve", "Steam", "CompatToolMapping", appID, "name")
	if err != nil {
		t.Fatalf("mapping %s: %v", appID, err)
	}
	return name
}

func TestListJSONKeepsFirstSeenOrder(t *testing.T) {
	steam := fixture(t)
	resetGlobals(t, steam)
	outputJSON = true

	stdout, _, err := run(t, newListCmd(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got map[string][][]string
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(got["GE-Proton8-32"]) != 2 || got["GE-Proton9-1"][0][1] != "123" {
		t.Fatalf("unexpected usage %v", got)
	}
	if strings.Index(stdout, "GE-Proton9-1") > strings.Index(stdout, "GE-Proton8-32") {
		t.Fatalf("expected scan order in output, got %s", stdout)
	}
}

func TestListTable(t *testing.T) {
	steam := fixture(t)
	resetGlobals(t, steam)

	stdout, _, err := run(t, newListCmd(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"GE-Proton8-32", "Pinned Game", "Beta Build", "Unused:", "GE-Proton7-55"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output:\n%s", want, stdout)
		}
	}
}

func TestUpdateRequiresVersionAndScope(t *testing.T) {
	steam := fixture(t)
	resetGlobals(t, steam)

	if _, _, err := run(t, newUpdateCmd(), "", "--games"); err == nil || !strings.Contains(err.Error(), "--latest or --version") {
		t.Fatalf("expected version error, got %v", err)
	}
	if _, _, err := run(t, newUpdateCmd(), "", "--version", "9-20"); err == nil || !strings.Contains(err.Error(), "nothing to update") {
		t.Fatalf("expected scope error, got %v", err)
	}
}

func TestUpdateDryRunChangesNothing(t *testing.T) {
	steam := fixture(t)
	resetGlobals(t, steam)
	dryRun = true
	before := testutil.ReadFile(t, steam.Paths.ConfigFile)

	stdout, _, err := run(t, newUpdateCmd(), "", "--games", "--default", "--version", "9.20")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := testutil.ReadFile(t, steam.Paths.ConfigFile); got != before {
		t.Fatal("config changed during dry run")
	}
	if _, err := os.Stat(filepath.Join(steam.Paths.CompatTools, "GE-Proton9-20")); !os.IsNotExist(err) {
		t.Fatal("dry run must not install")
	}
	if !strings.Contains(stdout, "Dry run") || !strings.Contains(stdout, "+") {
		t.Fatalf("expected dry-run notice and diff, got:\n%s", stdout)
	}
}

func TestUpdateGamesWithExcludes(t *testing.T) {
	steam := fixture(t)
	steam.InstallTool("GE-Proton9-20", "GE-Proton9-20")
	resetGlobals(t, steam)

	_, stderr, err := run(t, newUpdateCmd(), "", "--games", "--version", "GE-Proton9-20", "--exclude-regex", "(?i)beta")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(stderr, "already installed") {
		t.Fatalf("expected already-installed warning, got %q", stderr)
	}
	if got := mappingName(t, steam, "500"); got != "GE-Proton9-20" {
		t.Fatalf("expected pinned game updated, got %s", got)
	}
	if got := mappingName(t, steam, "600"); got != "GE-Proton8-32" {
		t.Fatalf("expected excluded game untouched, got %s", got)
	}
	if got := mappingName(t, steam, "123"); got != "GE-Proton9-1" {
		t.Fatalf("expected default follower untouched, got %s", got)
	}
	if got := mappingName(t, steam, "0"); got != "GE-Proton9-1" {
		t.Fatalf("expected default untouched without --default, got %s", got)
	}
	if got := testutil.ReadFile(t, steam.Library(0).VersionFile("500")); got != "GE-Proton9-20" {
		t.Fatalf("expected marker rewritten, got %q", got)
	}
}

func TestUpdateExcludeByID(t *testing.T) {
	steam := fixture(t)
	steam.InstallTool("GE-Proton9-20", "GE-Proton9-20")
	resetGlobals(t, steam)

	if _, _, err := run(t, newUpdateCmd(), "", "--games", "--version", "9-20", "--exclude", "500,600"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := mappingName(t, steam, "500"); got != "GE-Proton8-32" {
		t.Fatalf("expected excluded id untouched, got %s", got)
	}
}

func TestUpdateReusesScannedInstallWithoutFetching(t *testing.T) {
	steam := fixture(t)
	steam.InstallTool("proton-ge-9-20", "GE-Proton9-20")
	resetGlobals(t, steam)
	newInstaller = func(*session, *slog.Logger, tools.ProgressFunc) *tools.Installer {
		t.Fatal("installer built for a version that is already installed")
		return nil
	}

	_, stderr, err := run(t, newUpdateCmd(), "", "--games", "--version", "9.20")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(stderr, "GE-Proton9-20 is already installed") {
		t.Fatalf("expected already-installed warning, got %q", stderr)
	}
	if got := mappingName(t, steam, "500"); got != "GE-Proton9-20" {
		t.Fatalf("expected pinned game updated, got %s", got)
	}
	if _, err := os.Stat(filepath.Join(steam.Paths.CompatTools, "GE-Proton9-20")); !os.IsNotExist(err) {
		t.Fatal("expected no duplicate package dir")
	}
}

func TestInstallSkipsPackageWithDifferentDirName(t *testing.T) {
	steam := testutil.NewSteam(t)
	steam.InstallTool("proton-ge-13-37", "GE-Proton13-37")
	resetGlobals(t, steam)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
		http.NotFound(w, r)
	}))
	defer srv.Close()
	newInstaller = func(s *session, logger *slog.Logger, progress tools.ProgressFunc) *tools.Installer {
		inst := defaultInstaller(s, logger, progress)
		inst.APIBase, inst.DownloadBase, inst.Client = srv.URL, srv.URL, srv.Client()
		return inst
	}

	_, stderr, err := run(t, newInstallCmd(), "", "--version", "13-37")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !strings.Contains(stderr, "already installed") {
		t.Fatalf("expected already-installed warning, got %q", stderr)
	}
}

func TestDeleteWithConfirmation(t *testing.T) {
	steam := fixture(t)
	resetGlobals(t, steam)
	unused := filepath.Join(steam.Paths.CompatTools, "GE-Proton7-55")

	stdout, _, err := run(t, newDeleteCmd(), "n\n")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(stdout, "GE-Proton7-55") || !strings.Contains(stdout, "(y/n)") {
		t.Fatalf("expected prompt listing candidates, got %q", stdout)
	}
	if _, err := os.Stat(unused); err != nil {
		t.Fatal("declined deletion removed the package")
	}

	if _, _, err := run(t, newDeleteCmd(), "yes\n"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(unused); !os.IsNotExist(err) {
		t.Fatal("expected unused package removed")
	}
	for _, kept := range []string{"GE-Proton9-1", "GE-Proton8-32"} {
		if _, err := os.Stat(filepath.Join(steam.Paths.CompatTools, kept)); err != nil {
			t.Fatalf("used package %s removed", kept)
		}
	}
}

func TestDeleteKeepAndDryRun(t *testing.T) {
	steam := fixture(t)
	steam.InstallTool("GE-Proton7-54", "GE-Proton7-54")
	resetGlobals(t, steam)
	dryRun = true
	outputJSON = true

	stdout, _, err := run(t, newDeleteCmd(), "", "--keep", "1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	var plan []struct{ ID string }
	if err := json.Unmarshal([]byte(stdout), &plan); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(plan) != 1 || plan[0].ID != "GE-Proton7-54" {
		t.Fatalf("expected only the older unused version planned, got %+v", plan)
	}
	if _, err := os.Stat(filepath.Join(steam.Paths.CompatTools, "GE-Proton7-54")); err != nil {
		t.Fatal("dry run removed a package")
	}
}

func TestDeleteNothingToDo(t *testing.T) {
	steam := testutil.NewSteam(t)
	resetGlobals(t, steam)

	stdout, _, err := run(t, newDeleteCmd(), "")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if strings.Contains(stdout, "(y/n)") || !strings.Contains(stdout, "No unused versions found") {
		t.Fatalf("expected silent no-op, got %q", stdout)
	}
}

func TestTestScriptPassesDummyVersion(t *testing.T) {
	steam := testutil.NewSteam(t)
	resetGlobals(t, steam)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := testutil.WriteScript(t, dir, "hook.sh", `printf "%s" "$1" > `+out)

	if _, _, err := run(t, newTestScriptCmd(), "", "--script", script); err != nil {
		t.Fatalf("test-script: %v", err)
	}
	if got := testutil.ReadFile(t, out); got != "GE-Proton13-37" {
		t.Fatalf("expected dummy version, got %q", got)
	}
}

func protonTarGz(t *testing.T, tag string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	body := "\"compatibilitytools\"\n{\n\t\"compat_tools\"\n\t{\n\t\t\"" + tag + "\"\n\t\t{\n\t\t}\n\t}\n}\n"
	for _, hdr := range []*tar.Header{
		{Name: tag + "/", Typeflag: tar.TypeDir, Mode: 0o755},
		{Name: tag + "/compatibilitytool.vdf", Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(body))},
	} {
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(body)); err != nil {
				t.Fatal(err)
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

func TestInstallLatestRunsScript(t *testing.T) {
	steam := testutil.NewSteam(t)
	resetGlobals(t, steam)

	archive := protonTarGz(t, "GE-Proton10-4")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/releases/latest"):
			_, _ = w.Write([]byte(`{"tag_name":"GE-Proton10-4"}`))
		case strings.HasSuffix(r.URL.Path, "/GE-Proton10-4.tar.gz"):
			_, _ = w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	newInstaller = func(s *session, logger *slog.Logger, progress tools.ProgressFunc) *tools.Installer {
		inst := defaultInstaller(s, logger, progress)
		inst.APIBase, inst.DownloadBase, inst.Client = srv.URL, srv.URL, srv.Client()
		return inst
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := testutil.WriteScript(t, dir, "hook.sh", `printf "%s" "$1" > `+out)
	outputJSON = true

	stdout, _, err := run(t, newInstallCmd(), "", "--latest", "--script", script)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	var result tools.Result
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if !result.Fetched || result.Version != "GE-Proton10-4" {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(filepath.Join(steam.Paths.CompatTools, "GE-Proton10-4", "compatibilitytool.vdf")); err != nil {
		t.Fatalf("package not installed: %v", err)
	}
	if got := testutil.ReadFile(t, out); got != "GE-Proton10-4" {
		t.Fatalf("expected script to receive the version, got %q", got)
	}
}

func TestInvalidSettingsFailEarly(t *testing.T) {
	steam := testutil.NewSteam(t)
	resetGlobals(t, steam)
	testutil.WriteFile(t, configPath, "delete:\n  keep: -3\n")

	_, _, err := run(t, newListCmd(), "")
	if err == nil || !strings.Contains(err.Error(), "delete.keep") {
		t.Fatalf("expected settings error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	steam := testutil.NewSteam(t)
	resetGlobals(t, steam)

	stdout, _, err := run(t, newConfigCmd(), "", "init")
	if err != nil || !strings.Contains(stdout, "wrote") {
		t.Fatalf("init: %q %v", stdout, err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("settings file missing: %v", err)
	}

	testutil.WriteFile(t, configPath, "update:\n  exclude_regex: \"(\"\n")
	stdout, _, err = run(t, newConfigCmd(), "", "validate")
	if err == nil || !strings.Contains(stdout, "exclude_regex") {
		t.Fatalf("expected validation failure, got %q %v", stdout, err)
	}
}
