package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clusterkeeper/ilm/domain/model"
)

func TestResolve_LongestPrefix(t *testing.T) {
	record := map[string]int{
		"global":        30,
		"logstash":      14,
		"logstash-iis":  7,
	}

	tests := []struct {
		index string
		want  string
	}{
		{"logstash-iis-2024.01.02", "logstash-iis"},
		{"logstash-suricata-2024.01.02", "logstash"},
		{"winlogbeat-000001", "global"},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			require.Equal(t, tt.want, Resolve(record, tt.index))
		})
	}
}

func TestResolve_AlwaysReturnsAKeyOfTheRecord(t *testing.T) {
	record := map[string]int{
		"global": 1,
		"app":    2,
		"app-v2": 3,
	}

	for _, idx := range []string{"app-v2-2024", "app-2024", "unrelated", ""} {
		bucket := Resolve(record, idx)
		_, ok := record[bucket]
		require.True(t, ok, "resolved bucket %q must be a key of the record", bucket)
	}
}

func TestResolve_FallsBackToGlobalWhenNoPrefixMatches(t *testing.T) {
	record := map[string]int{
		model.ReservedBucket: 1,
		"nginx":              2,
	}
	require.Equal(t, model.ReservedBucket, Resolve(record, "apache-access"))
}

func TestResolve_EmptyRecordReturnsGlobal(t *testing.T) {
	require.Equal(t, model.ReservedBucket, Resolve(map[string]int{}, "anything"))
}

func TestResolveValue_SubstitutesDefaultWhenGlobalMissing(t *testing.T) {
	record := map[string]int{"app": 5}
	bucket, value := ResolveValue(record, "other", 99)
	require.Equal(t, model.ReservedBucket, bucket)
	require.Equal(t, 99, value)
}
