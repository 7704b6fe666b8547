package rollover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/gateway"
)

func TestDecide_SizeAuto(t *testing.T) {
	now := time.Now().UTC()
	target := Target{
		Name:             "logstash",
		WriteIndex:       "logstash-000001",
		PrimaryShards:    3,
		PrimarySizeBytes: 151 * bytesPerGB,
		CreationDate:     now.AddDate(0, 0, -2),
	}
	d := Decide(target, model.RolloverValue{Auto: true, Days: 30}, now)
	require.True(t, d.ShouldRoll, "151GB across 3 shards (auto=150GB) should roll over")
}

func TestDecide_SizeAuto_BelowThreshold(t *testing.T) {
	now := time.Now().UTC()
	target := Target{
		Name:             "logstash",
		WriteIndex:       "logstash-000001",
		PrimaryShards:    3,
		PrimarySizeBytes: 149 * bytesPerGB,
		CreationDate:     now.AddDate(0, 0, -2),
	}
	d := Decide(target, model.RolloverValue{Auto: true, Days: 30}, now)
	require.False(t, d.ShouldRoll)
}

func TestDecide_AgeFloor(t *testing.T) {
	now := time.Now().UTC()

	// Age past the policy's day threshold, but under the 1GB floor: no roll.
	tiny := Target{PrimaryShards: 1, PrimarySizeBytes: int64(0.5 * bytesPerGB), CreationDate: now.AddDate(0, 0, -40)}
	d := Decide(tiny, model.RolloverValue{SizeGB: 100, Days: 30}, now)
	require.False(t, d.ShouldRoll, "sub-1GB index must not roll over on age alone")

	// Same age, at least 1GB: rolls.
	grown := Target{PrimaryShards: 1, PrimarySizeBytes: int64(1.5 * bytesPerGB), CreationDate: now.AddDate(0, 0, -40)}
	d2 := Decide(grown, model.RolloverValue{SizeGB: 100, Days: 30}, now)
	require.True(t, d2.ShouldRoll)
}

func TestDecide_MonotonicInSizeAndAge(t *testing.T) {
	now := time.Now().UTC()
	policyValue := model.RolloverValue{SizeGB: 100, Days: 30}

	base := Target{PrimaryShards: 1, PrimarySizeBytes: int64(50 * bytesPerGB), CreationDate: now.AddDate(0, 0, -10)}
	baseDecision := Decide(base, policyValue, now)

	larger := base
	larger.PrimarySizeBytes = int64(150 * bytesPerGB)
	largerDecision := Decide(larger, policyValue, now)

	if baseDecision.ShouldRoll {
		require.True(t, largerDecision.ShouldRoll, "increasing size must not turn a roll into a non-roll")
	}

	older := base
	older.CreationDate = now.AddDate(0, 0, -100)
	olderDecision := Decide(older, policyValue, now)
	if baseDecision.ShouldRoll {
		require.True(t, olderDecision.ShouldRoll, "increasing age must not turn a roll into a non-roll")
	}
}

var errUnsupported = errors.New("rollover: unsupported on this backend")

type fakeGateway struct {
	gateway.Client
	rolloverCalls   []string
	rolloverResult  gateway.RolloverResult
	rolloverErr     error
	createIndexErr  error
	updateAliasErr  error
	createdIndices  []string
	aliases         []model.AliasMember
	streams         []model.DataStream
	stats           map[string]model.IndexRecord
}

func (f *fakeGateway) ListAliases(ctx context.Context) ([]model.AliasMember, error) {
	return f.aliases, nil
}

func (f *fakeGateway) ListDataStreams(ctx context.Context) ([]model.DataStream, error) {
	return f.streams, nil
}

func (f *fakeGateway) GetIndexStats(ctx context.Context, name string) (model.IndexRecord, error) {
	if rec, ok := f.stats[name]; ok {
		return rec, nil
	}
	return model.IndexRecord{}, errUnsupported
}

func (f *fakeGateway) Rollover(ctx context.Context, alias string) (gateway.RolloverResult, error) {
	f.rolloverCalls = append(f.rolloverCalls, alias)
	return f.rolloverResult, f.rolloverErr
}

func (f *fakeGateway) CreateIndex(ctx context.Context, name string) error {
	f.createdIndices = append(f.createdIndices, name)
	return f.createIndexErr
}

func (f *fakeGateway) UpdateAliases(ctx context.Context, actions []gateway.AliasAction) error {
	return f.updateAliasErr
}

func TestEngine_Apply_PrefersNativeRollover(t *testing.T) {
	fg := &fakeGateway{rolloverResult: gateway.RolloverResult{RolledOver: true, NewIndex: "logstash-000002"}}
	e := &Engine{Tenant: model.TenantConfig{Name: "acme"}, Gateway: fg}

	decision := Decision{Target: Target{Name: "logstash", WriteIndex: "logstash-000001"}, ShouldRoll: true}
	err := e.apply(context.Background(), decision)
	require.NoError(t, err)
	require.Equal(t, []string{"logstash"}, fg.rolloverCalls)
	require.Empty(t, fg.createdIndices, "native rollover succeeded; must not synthesize")
}

func TestEngine_Apply_AcceptsExplicitDeclineWithoutSynthesizing(t *testing.T) {
	fg := &fakeGateway{rolloverResult: gateway.RolloverResult{RolledOver: false}}
	e := &Engine{Tenant: model.TenantConfig{Name: "acme"}, Gateway: fg}

	decision := Decision{Target: Target{Name: "logstash", WriteIndex: "logstash-000001"}, ShouldRoll: true}
	err := e.apply(context.Background(), decision)
	require.NoError(t, err)
	// rolled_over:false from the cluster is an explicit decline, not a
	// transport failure, so the engine accepts it without synthesizing.
	require.Empty(t, fg.createdIndices)
}

func TestEngine_Apply_SynthesizesWhenNativeRolloverUnsupported(t *testing.T) {
	fg := &fakeGateway{rolloverErr: errUnsupported}
	e := &Engine{Tenant: model.TenantConfig{Name: "acme"}, Gateway: fg}

	decision := Decision{Target: Target{Name: "logstash", WriteIndex: "logstash-000001"}, ShouldRoll: true}
	err := e.apply(context.Background(), decision)
	require.NoError(t, err)
	require.Equal(t, []string{"logstash-000002"}, fg.createdIndices)
}

func TestCollectTargets_PicksDataStreamWriteIndexByGeneration(t *testing.T) {
	writeIndex := ".ds-logs-app-2024.01.02-000028"
	fg := &fakeGateway{
		streams: []model.DataStream{{
			Name:       "logs-app",
			Generation: 28,
			Indices: []string{
				".ds-logs-app-2024.01.01-000027",
				writeIndex,
				".ds-logs-app-2024.01.03-000029",
			},
		}},
		stats: map[string]model.IndexRecord{
			writeIndex: {Name: writeIndex, PrimaryShards: 3, PrimarySizeBytes: 1 << 30},
		},
	}
	e := &Engine{Tenant: model.TenantConfig{Name: "acme"}, Gateway: fg}

	targets, err := e.CollectTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, writeIndex, targets[0].WriteIndex)
	require.True(t, targets[0].IsDataStream)
}

func TestSuccessorIndexName(t *testing.T) {
	next, err := successorIndexName("logstash-000001")
	require.NoError(t, err)
	require.Equal(t, "logstash-000002", next)

	next2, err := successorIndexName("app-2024.01.02-7")
	require.NoError(t, err)
	require.Equal(t, "app-2024.01.02-8", next2)

	_, err = successorIndexName("no-ordinal-here")
	require.Error(t, err)
}
