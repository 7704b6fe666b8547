package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSnapshotName_SplitsShortNameFromStamp(t *testing.T) {
	short, _ := ParseSnapshotName("winlogbeat_2024-01-02_03:04:05")
	require.Equal(t, "winlogbeat", short)
}

func TestParseSnapshotName_AgeDays(t *testing.T) {
	stamp := time.Now().AddDate(0, 0, -8).Format("2006-01-02_15:04:05")
	full := "winlogbeat_" + stamp
	short, age := ParseSnapshotName(full)
	require.Equal(t, "winlogbeat", short)
	require.GreaterOrEqual(t, age, 7)
	require.LessOrEqual(t, age, 9)
}

func TestParseSnapshotName_NoStampReturnsFullName(t *testing.T) {
	short, age := ParseSnapshotName("not-a-snapshot-name")
	require.Equal(t, "not-a-snapshot-name", short)
	require.Equal(t, 0, age)
}
