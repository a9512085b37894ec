package version

import "testing"

func TestString(t *testing.T) {
	origV, origC, origB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = origV, origC, origB })

	Version, Commit, BuildTime = "1.2.3", "abc1234", "2025-01-02T03:04:05Z"
	if got, want := String(), "1.2.3 (abc1234) built 2025-01-02T03:04:05Z"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got, want := UserAgent(), "token-ticker/1.2.3"; got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}

func TestDefaults(t *testing.T) {
	if Version != "dev" {
		t.Errorf("Version = %q, want dev", Version)
	}
	if Commit != "unknown" || BuildTime != "unknown" {
		t.Errorf("unexpected defaults: commit=%q buildTime=%q", Commit, BuildTime)
	}
}
