package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/goplus/sqlmk/internal/tcl"
)

// Latest asks the installer to resolve the newest release tag.
const Latest = "latest"

// Source says where Tcl sources come from. Exactly one of URL and Git is
// normally set; URL wins when both are.
type Source struct {
	// Version is a release such as "8.6.13", or Latest.
	Version string
	// URL is an archive location. "{version}" is replaced by Version.
	URL string
	// Git is a remote repository; Ref defaults to the release tag.
	Git string
	Ref string
	// Dir overrides the source cache directory.
	Dir string
}

// ErrNoSource is returned when neither an archive URL nor a git remote is
// configured.
var ErrNoSource = errors.New("no Tcl source configured: set tcl.url or tcl.git")

func (s Source) archiveURL(version string) string {
	return strings.ReplaceAll(s.URL, "{version}", version)
}

func (s Source) ref(version string) string {
	if s.Ref != "" {
		return s.Ref
	}
	return tcl.VersionTag(version)
}

// describe names the source for the marker and log output.
func (s Source) describe(version string) string {
	if s.URL != "" {
		return s.archiveURL(version)
	}
	return s.Git + "@" + s.ref(version)
}

// resolveVersion turns Latest into a concrete release using the remote's tags.
func (in *Installer) resolveVersion(ctx context.Context) (string, error) {
	v := in.Source.Version
	if v == "" {
		v = tcl.MinVersion
	}
	if v != Latest {
		return v, nil
	}
	if in.Source.Git == "" {
		return "", fmt.Errorf("tcl version %q needs a git remote to list releases", Latest)
	}
	tags, err := in.vcs().Tags(ctx, in.Source.Git)
	if err != nil {
		return "", err
	}
	latest, ok := tcl.Latest(tags, "")
	if !ok {
		return "", fmt.Errorf("no Tcl release tags found at %s", in.Source.Git)
	}
	in.log().Info().Str("version", latest).Str("remote", in.Source.Git).Msg("Resolved latest Tcl release")
	return latest, nil
}

// fetch makes the sources of version available in dir. It returns the
// commit checked out, if the source is a git remote.
func (in *Installer) fetch(ctx context.Context, version, dir string) (string, error) {
	switch {
	case in.Source.URL != "":
		return "", in.download(ctx, in.Source.archiveURL(version), dir)
	case in.Source.Git != "":
		ref := in.Source.ref(version)
		in.log().Info().Str("remote", in.Source.Git).Str("ref", ref).Msg("Syncing Tcl sources")
		if err := in.vcs().Sync(ctx, in.Source.Git, ref, dir); err != nil {
			return "", err
		}
		return in.vcs().Head(ctx, dir)
	}
	return "", ErrNoSource
}

// download fetches an archive and unpacks it into dir. Local paths and
// file:// URLs are read directly.
func (in *Installer) download(ctx context.Context, rawURL, dir string) error {
	name := path.Base(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	if archiveKind(name) == "" {
		return fmt.Errorf("unsupported archive %s", name)
	}

	local := localPath(rawURL)
	if local == "" {
		f, err := os.CreateTemp(filepath.Dir(dir), ".download-*-"+name)
		if err != nil {
			return err
		}
		local = f.Name()
		defer os.Remove(local)

		start := time.Now()
		n, err := in.get(ctx, rawURL, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		in.log().Info().
			Str("url", rawURL).
			Str("size", humanize.Bytes(uint64(n))).
			Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
			Msg("Downloaded Tcl sources")
	}
	return extract(local, dir)
}

func (in *Installer) get(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	client := in.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return io.Copy(w, resp.Body)
}

func localPath(rawURL string) string {
	if p, ok := strings.CutPrefix(rawURL, "file://"); ok {
		return filepath.FromSlash(p)
	}
	if strings.Contains(rawURL, "://") {
		return ""
	}
	return rawURL
}
