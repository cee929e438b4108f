package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newRemote creates a local repository with one commit per tag.
func newRemote(t *testing.T, tags ...string) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_AUTHOR_NAME", "sqlmk")
	t.Setenv("GIT_AUTHOR_EMAIL", "sqlmk@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "sqlmk")
	t.Setenv("GIT_COMMITTER_EMAIL", "sqlmk@example.com")

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init", "--quiet")
	for _, tag := range tags {
		if err := os.WriteFile(filepath.Join(dir, "VERSION"), []byte(tag+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		git("add", "VERSION")
		git("commit", "--quiet", "-m", tag)
		git("tag", tag)
	}
	return "file://" + filepath.ToSlash(dir)
}

func TestGitVCS_Tags(t *testing.T) {
	remote := newRemote(t, "core-8-6-12", "core-8-6-13")
	tags, err := NewGitVCS().Tags(context.Background(), remote)
	if err != nil {
		t.Fatalf("Tags failed: %v", err)
	}
	sort.Strings(tags)
	want := []string{"core-8-6-12", "core-8-6-13"}
	if !cmp.Equal(want, tags) {
		t.Error(cmp.Diff(want, tags))
	}
}

func TestGitVCS_Sync(t *testing.T) {
	remote := newRemote(t, "core-8-6-12", "core-8-6-13")
	vcs := NewGitVCS()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "tcl")

	if err := vcs.Sync(ctx, remote, "core-8-6-12", dir); err != nil {
		t.Fatalf("Sync (clone) failed: %v", err)
	}
	assertVersion(t, dir, "core-8-6-12")
	hash1, err := vcs.Head(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := vcs.Sync(ctx, remote, "core-8-6-13", dir); err != nil {
		t.Fatalf("Sync (update) failed: %v", err)
	}
	assertVersion(t, dir, "core-8-6-13")
	hash2, err := vcs.Head(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(hash1) != 40 || hash1 == hash2 {
		t.Errorf("HEAD should change between tags, got %q and %q", hash1, hash2)
	}
}

func TestGitVCS_SyncUnknownRef(t *testing.T) {
	remote := newRemote(t, "core-8-6-13")
	dir := filepath.Join(t.TempDir(), "tcl")
	if err := NewGitVCS().Sync(context.Background(), remote, "core-9-9-9", dir); err == nil {
		t.Fatal("Sync of unknown ref succeeded")
	}
}

func TestGitVCS_MissingBinary(t *testing.T) {
	vcs := NewGitVCS(WithGitPath(filepath.Join(t.TempDir(), "no-git")))
	if _, err := vcs.Tags(context.Background(), "file:///nowhere"); err == nil {
		t.Fatal("Tags with missing git succeeded")
	}
}

func assertVersion(t *testing.T, dir, want string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != want+"\n" {
		t.Errorf("VERSION = %q, want %q", got, want)
	}
}

func TestParseTagRefs(t *testing.T) {
	out := "1111\trefs/tags/core-8-6-13\n" +
		"2222\trefs/tags/core-8-6-13^{}\n" +
		"3333\trefs/heads/main\n" +
		"garbage\n" +
		"\n" +
		"4444\trefs/tags/core-9-0-0\r\n"
	want := []string{"core-8-6-13", "core-9-0-0"}
	if got := parseTagRefs(out); !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}
