package phoenix_test

import (
	"testing"

	"github.com/Masterminds/semver/v3"

	phoenix "github.com/felixgeelhaar/agent-phoenix"
)

func TestVersion_IsStrictSemver(t *testing.T) {
	t.Parallel()

	v, err := semver.StrictNewVersion(phoenix.Version)
	if err != nil {
		t.Fatalf("Version %q is not semver: %v", phoenix.Version, err)
	}
	if v.Prerelease() != "" {
		t.Errorf("Version %q carries a prerelease tag", phoenix.Version)
	}
}

func TestGetVersion(t *testing.T) {
	t.Parallel()

	if got := phoenix.GetVersion(); got != phoenix.Version {
		t.Errorf("GetVersion() = %s, want %s", got, phoenix.Version)
	}
}
