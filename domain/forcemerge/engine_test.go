package forcemerge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/gateway"
	"github.com/clusterkeeper/ilm/notifier"
)

func TestDecide_MergesAfterThreshold(t *testing.T) {
	now := time.Now().UTC()
	ref := now.AddDate(0, 0, -91)
	d := Decide(Target{Name: "logstash-000001"}, model.ForceMergeValue{Days: 90}, ref, now)
	require.True(t, d.ShouldMerge)
}

func TestDecide_NoMergeBeforeThreshold(t *testing.T) {
	now := time.Now().UTC()
	ref := now.AddDate(0, 0, -10)
	d := Decide(Target{Name: "logstash-000001"}, model.ForceMergeValue{Days: 90}, ref, now)
	require.False(t, d.ShouldMerge)
}

type fakeGateway struct {
	gateway.Client
	indices     []model.IndexRecord
	newest      map[string]time.Time
	newestFound map[string]bool
	mergeErr    error
	merged      []string
}

func (f *fakeGateway) ListIndices(ctx context.Context) ([]model.IndexRecord, error) {
	return f.indices, nil
}

func (f *fakeGateway) NewestTimestamp(ctx context.Context, index, field string) (time.Time, bool, error) {
	return f.newest[index], f.newestFound[index], nil
}

func (f *fakeGateway) ForceMerge(ctx context.Context, index string) error {
	f.merged = append(f.merged, index)
	return f.mergeErr
}

func TestEngine_Run_MergesAgedIndex(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fg := &fakeGateway{
		indices:     []model.IndexRecord{{Name: "logstash-2023.01.01", CreationDate: now.AddDate(0, -4, 0)}},
		newestFound: map[string]bool{},
		newest:      map[string]time.Time{},
	}
	e := &Engine{
		Tenant:  model.TenantConfig{Name: "acme", Policy: model.PolicyRecord{ForceMerge: map[string]model.ForceMergeValue{"global": {Days: 90}}}},
		Gateway: fg,
		Now:     func() time.Time { return now },
	}
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, []string{"logstash-2023.01.01"}, fg.merged)
}

func TestEngine_Run_TreatsAsyncAcknowledgedAsSuccess(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var notified []string
	fg := &fakeGateway{
		indices:     []model.IndexRecord{{Name: "logstash-2023.01.01", CreationDate: now.AddDate(0, -4, 0)}},
		newestFound: map[string]bool{},
		newest:      map[string]time.Time{},
		mergeErr:    gateway.ErrAsyncAcknowledged,
	}
	e := &Engine{
		Tenant:   model.TenantConfig{Name: "acme", Policy: model.PolicyRecord{ForceMerge: map[string]model.ForceMergeValue{"global": {Days: 90}}}},
		Gateway:  fg,
		Notifier: &recordingNotifier{fn: func(s string) { notified = append(notified, s) }},
		Now:      func() time.Time { return now },
	}
	require.NoError(t, e.Run(context.Background()))
	require.Empty(t, notified, "async-acknowledged timeout must not be reported as a failure")
}

type recordingNotifier struct {
	fn func(subject string)
}

func (r *recordingNotifier) Notify(ctx context.Context, event notifier.Event) {
	r.fn(event.Subject)
}
