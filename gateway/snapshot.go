package gateway

import (
	"regexp"
	"time"
)

// A created snapshot's full name carries a trailing timestamp suffix of
// the form _YYYY-MM-DD_HH:MM[:SS]; the prefix before it is the logical
// job ("short name") that created the snapshot.
const snapshotStampLayoutWithSeconds = "2006-01-02_15:04:05"
const snapshotStampLayoutNoSeconds = "2006-01-02_15:04"

func snapshotStampPattern() *regexp.Regexp {
	return regexp.MustCompile(`_(\d{4}-\d{2}-\d{2}_\d{2}:\d{2}(?::\d{2})?)$`)
}

// ParseSnapshotName splits a snapshot's full name into its short name (the
// logical job that created it) and the age in whole days of its timestamp
// suffix, relative to now.
func ParseSnapshotName(full string) (shortName string, ageDays int) {
	short, ok := SplitSnapshotStamp(full)
	if !ok {
		return full, 0
	}
	return short, ageDaysFromStamp(full)
}

// SplitSnapshotStamp returns the full name minus its trailing
// _YYYY-MM-DD_HH:MM[:SS] stamp, and whether a stamp was found.
func SplitSnapshotStamp(full string) (string, bool) {
	m := snapshotStampPattern().FindStringIndex(full)
	if m == nil {
		return full, false
	}
	return full[:m[0]], true
}

func ageDaysFromStamp(full string) int {
	m := snapshotStampPattern().FindStringSubmatch(full)
	if m == nil {
		return 0
	}
	stamp := m[1]
	layout := snapshotStampLayoutWithSeconds
	if len(stamp) == len("2006-01-02_15:04") {
		layout = snapshotStampLayoutNoSeconds
	}
	t, err := time.Parse(layout, stamp)
	if err != nil {
		return 0
	}
	return int(time.Since(t).Hours() / 24)
}

func parseSnapshotName(full string) (string, int) {
	return ParseSnapshotName(full)
}
