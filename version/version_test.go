package version

import "testing"

func TestVersionMatchesDetails(t *testing.T) {
	major, minor, patch := VersionDetails()
	want := major + "." + minor + "." + patch
	if got := Version(); got != want {
		t.Fatalf("Version() = %q, want %q", got, want)
	}
}
