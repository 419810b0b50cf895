// Package version holds build identity.
package version

import (
	"runtime/debug"
	"time"
)

// Version is the release of the daemon. Set at build time via ldflags:
//
//	-X github.com/sweeney/growlight/internal/version.Version=X.Y.Z
var Version = "dev"

// BuildTime is the RFC3339 build timestamp, set via ldflags:
//
//	-X github.com/sweeney/growlight/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)
var BuildTime = ""

// fallback is used when neither ldflags nor VCS stamping provide a time.
var fallback = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// BuildTimestamp returns the best known build time. The clock is reset to
// this after it loses power, so the light follows a plausible schedule until
// the time is set properly.
func BuildTimestamp() time.Time {
	return buildTimestamp(BuildTime, debug.ReadBuildInfo)
}

func buildTimestamp(stamp string, info func() (*debug.BuildInfo, bool)) time.Time {
	if t, err := time.Parse(time.RFC3339, stamp); err == nil {
		return t
	}
	if bi, ok := info(); ok {
		for _, s := range bi.Settings {
			if s.Key != "vcs.time" {
				continue
			}
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				return t
			}
		}
	}
	return fallback
}
