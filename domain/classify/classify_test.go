package classify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroup_StripsDateAndOrdinal(t *testing.T) {
	tests := []struct {
		name  string
		index string
		want  string
	}{
		{"trailing date and ordinal", "logstash-iis-2024.01.02-000007", "logstash-iis"},
		{"data stream backing index", ".ds-logs-app-2024.01.02-000028", "logs-app"},
		{"leading date token", "2024.01.02-logstash-iis", "logstash-iis"},
		{"dash separators", "app-2024-01-02-000001", "app"},
		{"no suffixes at all", "winlogbeat", "winlogbeat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Group(tt.index))
		})
	}
}

func TestGroup_InvariantUnderAnySupportedSuffix(t *testing.T) {
	base := "logstash-iis"
	dates := []string{"2024.01.02", "2024-01-02", "2024_01_02", "2024:01:02"}
	for _, date := range dates {
		for ord := 1; ord <= 6; ord++ {
			ordinal := fmt.Sprintf("%0*d", ord, 7)
			idx := fmt.Sprintf("%s-%s-%s", base, date, ordinal)
			require.Equal(t, base, Group(idx), "index=%s", idx)
		}
	}
}

func TestIsSpecial(t *testing.T) {
	specialNames := []string{
		"accounting-2024.01.02",
		"elastic-ilm-jobs",
		"elastastalert_status",
		"elastalert_status",
		"readonlyrest",
		".readonlyrest",
		"reflex-indices",
		"ilm-history-1",
		".kibana",
		".security",
	}
	for _, n := range specialNames {
		require.True(t, IsSpecial(n), "expected %q to be special", n)
	}

	notSpecial := []string{
		".monitoring-es-7-2024.01.02",
		".ds-logs-app-2024.01.02-000001",
		"logstash-2024.01.02",
		"winlogbeat-000001",
	}
	for _, n := range notSpecial {
		require.False(t, IsSpecial(n), "expected %q to not be special", n)
	}
}

func TestIsWriteIndexForDataStream(t *testing.T) {
	require.True(t, IsWriteIndexForDataStream(".ds-logs-app-2024.01.02-000028", 28))
	require.False(t, IsWriteIndexForDataStream(".ds-logs-app-2024.01.02-000028", 29))
}

func TestDataStreamMember_MarksOnlyTheCurrentGeneration(t *testing.T) {
	members := DataStreamMember("logs-app", []string{"i1", "i2", "i3"}, 2)
	require.Len(t, members, 3)
	require.False(t, members[0].IsWriteIndex)
	require.True(t, members[1].IsWriteIndex)
	require.False(t, members[2].IsWriteIndex)
}

func TestDataStreamMember_OrdinalBeatsPosition(t *testing.T) {
	// Retention has deleted older backing indices, so the write member is
	// neither the generation-th nor the last listed index.
	indices := []string{
		".ds-logs-app-2024.01.01-000027",
		".ds-logs-app-2024.01.02-000028",
		".ds-logs-app-2024.01.03-000029",
	}
	members := DataStreamMember("logs-app", indices, 28)
	require.False(t, members[0].IsWriteIndex)
	require.True(t, members[1].IsWriteIndex)
	require.False(t, members[2].IsWriteIndex)
}
