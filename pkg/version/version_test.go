package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	oldVersion, oldBuild := Version, BuildTime
	t.Cleanup(func() { Version, BuildTime = oldVersion, oldBuild })

	Version, BuildTime = "1.2.3", "2026-01-02T03:04:05Z"
	info := GetVersionInfo()
	for _, want := range []string{"ChronoLoop v1.2.3", "2026-01-02T03:04:05Z", runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(info, want) {
			t.Errorf("Expected %q in %q", want, info)
		}
	}
	if GetVersion() != "1.2.3" || GetBuildTime() != "2026-01-02T03:04:05Z" {
		t.Errorf("Unexpected accessors %s %s", GetVersion(), GetBuildTime())
	}
}
