package version

import (
	"runtime/debug"
	"testing"
)

func withBuild(t *testing.T, version, commit, built string, settings ...debug.BuildSetting) {
	t.Helper()
	origVersion, origCommit, origBuilt, origRead := Version, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = origVersion, origCommit, origBuilt, origRead
	})
	Version, GitCommit, BuildTime = version, commit, built
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{GoVersion: "go1.26.0", Settings: settings}, true
	}
}

func TestGet_FromLdflags(t *testing.T) {
	withBuild(t, "1.2.0", "abc1234", "2026-01-15T10:30:00Z",
		debug.BuildSetting{Key: "vcs.revision", Value: "ffffffffffff"})

	info := Get()
	if info.GitCommit != "abc1234" {
		t.Errorf("expected ldflags commit to win, got %q", info.GitCommit)
	}
	if !info.IsRelease() {
		t.Error("1.2.0 should be a release")
	}
	if info.GoVersion != "go1.26.0" {
		t.Errorf("expected go1.26.0, got %q", info.GoVersion)
	}
	if got := info.String(); got != "1.2.0-abc1234 (built 2026-01-15T10:30:00Z)" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestGet_FromVCSStamp(t *testing.T) {
	withBuild(t, "dev", "", "",
		debug.BuildSetting{Key: "vcs.revision", Value: "0123456789abcdef"},
		debug.BuildSetting{Key: "vcs.time", Value: "2026-03-01T00:00:00Z"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
	)

	info := Get()
	if info.GitCommit != "0123456" {
		t.Errorf("expected short commit, got %q", info.GitCommit)
	}
	if !info.Dirty || info.IsRelease() {
		t.Errorf("expected dirty dev build, got %+v", info)
	}
	if got := info.String(); got != "dev-0123456-dirty (built 2026-03-01T00:00:00Z)" {
		t.Errorf("unexpected string %q", got)
	}
}

func TestGet_NoBuildInfo(t *testing.T) {
	withBuild(t, "dev", "", "")
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }

	info := Get()
	if info.String() != "dev" {
		t.Errorf("expected plain dev, got %q", info.String())
	}
	if info.Fields()["version"] != "dev" {
		t.Errorf("unexpected fields %v", info.Fields())
	}
}
