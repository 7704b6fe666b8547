package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/gateway"
)

func TestDecide_AbsentTimestampFallsBackToCreationDate(t *testing.T) {
	// Scenario 4: logstash-x-2020.01.01, no @timestamp, creation 2020-01-01,
	// retention_days=365, today 2024-01-01 -> deleted (age 1461 >= 365).
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	creation := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	target := Target{Name: "logstash-x-2020.01.01", CreationDate: creation}

	d := Decide(target, model.RetentionValue{Days: 365}, creation, now)
	require.True(t, d.ShouldDelete)
	require.Equal(t, 1461, d.AgeDays)
}

func TestDecide_BelowThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ref := now.AddDate(0, 0, -10)
	d := Decide(Target{Name: "logstash-000001"}, model.RetentionValue{Days: 365}, ref, now)
	require.False(t, d.ShouldDelete)
}

type fakeGateway struct {
	gateway.Client
	health           string
	indices          []struct {
		name string
		rec  model.IndexRecord
	}
	streams          []model.DataStream
	newest           map[string]time.Time
	newestFound      map[string]bool
	deletedBatches   [][]string
	deletedStreams   []string
}

func (f *fakeGateway) ClusterHealth(ctx context.Context) (string, error) {
	return f.health, nil
}

func (f *fakeGateway) ListDataStreams(ctx context.Context) ([]model.DataStream, error) {
	return f.streams, nil
}

func (f *fakeGateway) ListIndices(ctx context.Context) ([]model.IndexRecord, error) {
	recs := make([]model.IndexRecord, 0, len(f.indices))
	for _, e := range f.indices {
		recs = append(recs, e.rec)
	}
	return recs, nil
}

func (f *fakeGateway) NewestTimestamp(ctx context.Context, index, field string) (time.Time, bool, error) {
	return f.newest[index], f.newestFound[index], nil
}

func (f *fakeGateway) DeleteIndices(ctx context.Context, names []string) error {
	f.deletedBatches = append(f.deletedBatches, names)
	return nil
}

func (f *fakeGateway) DeleteDataStream(ctx context.Context, name string) error {
	f.deletedStreams = append(f.deletedStreams, name)
	return nil
}

func TestEngine_Run_AbortsOnInsufficientHealth(t *testing.T) {
	fg := &fakeGateway{health: "red"}
	e := &Engine{Tenant: model.TenantConfig{Name: "acme"}, Gateway: fg, RequiredGate: "yellow"}
	err := e.Run(context.Background())
	require.Error(t, err)
	require.Empty(t, fg.deletedBatches)
}

func TestEngine_Run_DeletesAgedIndexAndSkipsFresh(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old := model.IndexRecord{Name: "logstash-2020.01.01", CreationDate: now.AddDate(-4, 0, 0)}
	fresh := model.IndexRecord{Name: "logstash-2024.01.01", CreationDate: now.AddDate(0, 0, -1)}

	fg := &fakeGateway{
		health: "green",
		indices: []struct {
			name string
			rec  model.IndexRecord
		}{{old.Name, old}, {fresh.Name, fresh}},
		newestFound: map[string]bool{},
		newest:      map[string]time.Time{},
	}
	e := &Engine{
		Tenant:       model.TenantConfig{Name: "acme", Policy: model.PolicyRecord{Retention: map[string]model.RetentionValue{"global": {Days: 365}}}},
		Gateway:      fg,
		RequiredGate: "yellow",
		Now:          func() time.Time { return now },
	}
	require.NoError(t, e.Run(context.Background()))
	require.Len(t, fg.deletedBatches, 1)
	require.Equal(t, []string{"logstash-2020.01.01"}, fg.deletedBatches[0])
}

func TestEngine_Run_DeletesDataStreamWhenSoleMember(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backing := model.IndexRecord{Name: ".ds-logs-app-2020.01.01-000001", CreationDate: now.AddDate(-4, 0, 0)}

	fg := &fakeGateway{
		health: "green",
		indices: []struct {
			name string
			rec  model.IndexRecord
		}{{backing.Name, backing}},
		streams:     []model.DataStream{{Name: "logs-app", Generation: 1, Indices: []string{backing.Name}}},
		newestFound: map[string]bool{},
		newest:      map[string]time.Time{},
	}
	e := &Engine{
		Tenant:       model.TenantConfig{Name: "acme", Policy: model.PolicyRecord{Retention: map[string]model.RetentionValue{"global": {Days: 365}}}},
		Gateway:      fg,
		RequiredGate: "yellow",
		Now:          func() time.Time { return now },
	}
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, []string{"logs-app"}, fg.deletedStreams)
	require.Empty(t, fg.deletedBatches)
}

func TestEngine_Run_BatchesDeletesAt50(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fg := &fakeGateway{health: "green", newestFound: map[string]bool{}, newest: map[string]time.Time{}}
	for i := 0; i < 120; i++ {
		name := "logstash-" + time.Unix(int64(i), 0).Format("150405")
		rec := model.IndexRecord{Name: name, CreationDate: now.AddDate(-2, 0, 0)}
		fg.indices = append(fg.indices, struct {
			name string
			rec  model.IndexRecord
		}{name, rec})
	}
	e := &Engine{
		Tenant:       model.TenantConfig{Name: "acme", Policy: model.PolicyRecord{Retention: map[string]model.RetentionValue{"global": {Days: 30}}}},
		Gateway:      fg,
		RequiredGate: "yellow",
		Now:          func() time.Time { return now },
	}
	require.NoError(t, e.Run(context.Background()))
	require.Len(t, fg.deletedBatches, 3)
	require.Len(t, fg.deletedBatches[0], 50)
	require.Len(t, fg.deletedBatches[2], 20)
}
