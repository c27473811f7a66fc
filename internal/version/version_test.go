// ABOUTME: Tests for version reporting
// ABOUTME: Checks the combined product string and build-time overrides
package version

import "testing"

func TestString(t *testing.T) {
	if got, want := String(), "SMACC Noise 0.3.0"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestStringFollowsVersionOverride(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	Version = "1.0.0-rc1"
	if got, want := String(), "SMACC Noise 1.0.0-rc1"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
