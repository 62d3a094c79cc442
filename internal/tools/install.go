package tools

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"protonge/internal/inventory"
	"protonge/internal/logx"
	"protonge/internal/paths"
	"protonge/internal/version"
)

const (
	defaultTimeout = 10 * time.Minute
	installLock    = ".protonge-install.lock"
)

// Locator finds the directory of an installed identifier.
type Locator interface {
	PackageDir(id string) (string, bool)
}

// Installer fetches release archives and unpacks them into the Steam
// compatibility tools directory.
type Installer struct {
	CompatTools string
	// Repo defaults to DefaultRepo.
	Repo string
	// APIBase and DownloadBase default to the public GitHub endpoints.
	APIBase      string
	DownloadBase string
	// CacheDir holds the latest-release cache. Empty disables caching.
	CacheDir string
	Client   *http.Client
	Timeout  time.Duration
	Logger   *slog.Logger
	Progress ProgressFunc
	// Installed is a scan the caller already holds. When nil the tools
	// directory is read before fetching.
	Installed Locator
}

// Install installs requested, which is either version.Latest or any accepted
// spelling of a version. When the version is already present the Result is
// returned with ErrAlreadyInstalled and nothing is fetched.
func (i *Installer) Install(ctx context.Context, requested string) (Result, error) {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), i.timeout())
		defer cancel()
	}

	tag, err := i.resolveRequested(ctx, requested)
	if err != nil {
		return Result{}, err
	}
	dest := filepath.Join(i.CompatTools, tag)
	result := Result{Version: tag, Dir: dest}

	dir, found, err := i.lookupInstalled(tag, dest, i.Installed)
	if err != nil {
		return result, err
	}
	if found {
		i.logger().Warn(fmt.Sprintf("Version %s is already installed", tag))
		result.Dir = dir
		return result, ErrAlreadyInstalled
	}

	if err := os.MkdirAll(i.CompatTools, 0o755); err != nil {
		return result, fmt.Errorf("prepare compatibility tools dir: %w", err)
	}
	unlock, err := acquireInstallLock(ctx, i.CompatTools)
	if err != nil {
		return result, err
	}
	defer unlock()

	// Another process may have finished the same install while we waited.
	if dir, found, err := i.lookupInstalled(tag, dest, nil); err != nil {
		return result, err
	} else if found {
		result.Dir = dir
		return result, ErrAlreadyInstalled
	}

	downloads, err := os.MkdirTemp("", "protonge-download-")
	if err != nil {
		return result, fmt.Errorf("create download dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(downloads) }()

	archivePath := filepath.Join(downloads, tag+".tar.gz")
	i.logger().Info(fmt.Sprintf("Downloading %s...", tag))
	checksum, err := i.downloadArtifact(ctx, archivePath, i.downloadURL(tag), tag)
	if err != nil {
		return result, err
	}
	i.logger().Debug("Download complete", "sha256", checksum)

	i.logger().Info(fmt.Sprintf("Extracting %s...", tag))
	if err := i.extractPackage(archivePath, tag, dest); err != nil {
		return result, err
	}

	result.Checksum = checksum
	result.Fetched = true
	i.logger().Info(fmt.Sprintf("Installed %s", tag))
	return result, nil
}

func (i *Installer) resolveRequested(ctx context.Context, requested string) (string, error) {
	if requested == version.Latest {
		return i.ResolveLatest(ctx)
	}
	return version.Normalize(requested)
}

// lookupInstalled reports where tag is installed. Packages are matched by
// descriptor identifier, and a directory already named after the tag also
// counts since the install could not be renamed over it. A nil known reads
// the tools directory from disk.
func (i *Installer) lookupInstalled(tag, dest string, known Locator) (string, bool, error) {
	if known == nil {
		pkgs, err := inventory.ReadInstalled(i.CompatTools, i.logger())
		if err != nil {
			return "", false, err
		}
		known = inventory.Inventory{Installed: pkgs}
	}
	if dir, ok := known.PackageDir(tag); ok {
		return dir, true, nil
	}
	exists, err := paths.DirExists(dest)
	if err != nil {
		return "", false, err
	}
	return dest, exists, nil
}

func acquireInstallLock(ctx context.Context, dir string) (func(), error) {
	lockPath := filepath.Join(dir, installLock)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (i *Installer) downloadArtifact(ctx context.Context, dest, downloadURL, tag string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := i.client().Do(req)
	if err != nil {
		return "", &TransferError{URL: downloadURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransferError{URL: downloadURL, Status: resp.Status}
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}

	h := sha256.New()
	var sink io.Writer = io.MultiWriter(out, h)
	if i.Progress != nil {
		sink = io.MultiWriter(sink, &progressWriter{version: tag, total: resp.ContentLength, report: i.Progress})
	}
	if _, err := io.Copy(sink, resp.Body); err != nil {
		out.Close()
		return "", &TransferError{URL: downloadURL, Err: err}
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close archive file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type progressWriter struct {
	version string
	done    int64
	total   int64
	report  ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.done += int64(len(p))
	w.report(w.version, w.done, w.total)
	return len(p), nil
}

// extractPackage unpacks into a hidden staging directory next to dest and
// renames the package root into place, so a failed extraction leaves no
// partial package behind.
func (i *Installer) extractPackage(archivePath, tag, dest string) error {
	staging, err := os.MkdirTemp(i.CompatTools, ".staging-"+tag+"-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err := extractTarGz(archivePath, staging); err != nil {
		return err
	}

	root, err := packageRoot(staging, tag)
	if err != nil {
		return err
	}
	if err := os.Rename(root, dest); err != nil {
		return fmt.Errorf("commit %s: %w", tag, err)
	}
	return nil
}

// packageRoot finds the directory holding the package: the entry named after
// the tag, else a single top-level directory, else the staging dir itself.
func packageRoot(staging, tag string) (string, error) {
	named := filepath.Join(staging, tag)
	if ok, _ := paths.DirExists(named); ok {
		return named, nil
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", fmt.Errorf("read staging dir: %w", err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("archive for %s is empty", tag)
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(staging, entries[0].Name()), nil
	}
	return staging, nil
}

func extractTarGz(archivePath, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(gz, dest)
}

func untarStream(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}
		if err := rejectSymlinkedPath(dest, filepath.Dir(target)); err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := rejectSymlinkedPath(dest, target); err != nil {
				return err
			}
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0o700); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := rejectSymlinkedPath(dest, target); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare file %s: %w", target, err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("close file %s: %w", target, err)
			}
		case tar.TypeSymlink:
			if err := checkLinkTarget(dest, target, header.Name, header.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("prepare link %s: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("create link %s: %w", target, err)
			}
		case tar.TypeLink:
			source, err := safeJoin(dest, header.Linkname)
			if err != nil {
				return err
			}
			if err := rejectSymlinkedPath(dest, source); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("create hard link %s: %w", target, err)
			}
		default:
			// Ignore other entry types.
		}
	}
	return nil
}

func safeJoin(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

// checkLinkTarget rejects symlinks that are absolute or resolve outside root.
func checkLinkTarget(root, target, name, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("archive entry %q links outside destination: %s", name, linkname)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(linkname))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("archive entry %q links outside destination: %s", name, linkname)
	}
	return nil
}

// rejectSymlinkedPath fails when any existing component of path below root,
// path itself included, is a symlink. Writing through one could land
// outside root.
func rejectSymlinkedPath(root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return fmt.Errorf("archive path %s: %w", path, err)
	}
	if rel == "." {
		return nil
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("inspect %s: %w", cur, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("archive entry under %s writes through a symlink", cur)
		}
	}
	return nil
}

func (i *Installer) repo() string {
	if i.Repo != "" {
		return i.Repo
	}
	return DefaultRepo
}

func (i *Installer) apiBase() string {
	if i.APIBase != "" {
		return i.APIBase
	}
	return defaultAPIBase
}

func (i *Installer) downloadBase() string {
	if i.DownloadBase != "" {
		return i.DownloadBase
	}
	return defaultDownloadBase
}

func (i *Installer) timeout() time.Duration {
	if i.Timeout > 0 {
		return i.Timeout
	}
	return defaultTimeout
}

func (i *Installer) client() *http.Client {
	if i.Client != nil {
		return i.Client
	}
	return &http.Client{Timeout: i.timeout()}
}

func (i *Installer) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return logx.Discard()
}
