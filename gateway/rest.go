package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/clusterkeeper/ilm/domain/model"
	"github.com/clusterkeeper/ilm/infrastructure/errors"
	"github.com/clusterkeeper/ilm/infrastructure/httputil"
	"github.com/clusterkeeper/ilm/infrastructure/ratelimit"
	"github.com/clusterkeeper/ilm/infrastructure/resilience"
)

const (
	defaultRequestTimeout = 10 * time.Second
	healthRequestTimeout  = 30 * time.Second

	// maxResponseBytes bounds how much of a cluster response is read into
	// memory; cat/indices on a very large cluster is the biggest payload.
	maxResponseBytes = 64 << 20
)

// RESTClient is the default Client implementation: a thin REST binding over
// an Elasticsearch/OpenSearch-compatible cluster.
type RESTClient struct {
	tenant     string
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	breaker    *resilience.CircuitBreaker
	retry      resilience.RetryConfig
}

// NewRESTClient builds a RESTClient for tenant, wiring TLS, rate limiting,
// the circuit breaker, and the retry-with-backoff policy (up
// to 5 tries, initial delay 1s, multiplier 1 by default).
func NewRESTClient(tenant model.TenantConfig) (*RESTClient, error) {
	scheme := "http"
	transport := httputil.DefaultTransportWithMinTLS12()
	if tenant.Connection.TLSEnabled {
		scheme = "https"
		tlsCfg, err := buildTLSConfig(tenant.Connection)
		if err != nil {
			return nil, errors.Configuration("build tls config for tenant "+tenant.Name, err)
		}
		transport.TLSClientConfig = tlsCfg
	}

	base := fmt.Sprintf("%s://%s:%d", scheme, tenant.Connection.Host, tenant.Connection.Port)

	httpClient := &http.Client{
		Timeout:   defaultRequestTimeout,
		Transport: transport,
	}

	return &RESTClient{
		tenant:     tenant.Name,
		baseURL:    base,
		username:   tenant.Connection.Username,
		password:   tenant.Connection.Password,
		httpClient: httpClient,
		limiter:    ratelimit.New(ratelimit.DefaultConfig()),
		breaker:    resilience.New(resilience.DefaultConfig()),
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 1 * time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   1,
		},
	}, nil
}

var _ Client = (*RESTClient)(nil)

// call performs one idempotent REST call under the rate limiter, circuit
// breaker, and retry policy, returning the raw response body.
func (c *RESTClient) call(ctx context.Context, method, path string, query url.Values, body []byte, timeout time.Duration) ([]byte, int, error) {
	return c.callWithTimeoutPolicy(ctx, method, path, query, body, timeout, false)
}

// callWithTimeoutPolicy is call, with timeoutIsSuccess controlling the
// timeout-as-success rule: when true, a request timeout stops retrying and
// is reported as ErrAsyncAcknowledged instead of a Transport error. Only
// ForceMerge opts into this; every other endpoint retries a timeout like
// any other transport failure.
func (c *RESTClient) callWithTimeoutPolicy(ctx context.Context, method, path string, query url.Values, body []byte, timeout time.Duration, timeoutIsSuccess bool) ([]byte, int, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	var respBody []byte
	var status int

	var asyncAcknowledged bool

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(reqCtx, method, u, reader)
		if err != nil {
			return errors.Transport(c.tenant, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}
		if err := c.limiter.Wait(reqCtx); err != nil {
			return errors.Transport(c.tenant, err)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)
		if err != nil {
			logCall(method, path, 0, duration, err)
			if timeoutIsSuccess && isTimeoutErr(err) {
				// Timeout-as-success: stop retrying and don't trip the
				// circuit breaker — the cluster keeps working.
				asyncAcknowledged = true
				return nil
			}
			return errors.Transport(c.tenant, err)
		}
		defer resp.Body.Close()

		b, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
		if err != nil {
			logCall(method, path, resp.StatusCode, duration, err)
			return errors.Transport(c.tenant, err)
		}
		logCall(method, path, resp.StatusCode, duration, nil)

		status = resp.StatusCode
		respBody = b

		if resp.StatusCode >= 500 {
			return errors.Transport(c.tenant, fmt.Errorf("cluster returned %d: %s", resp.StatusCode, respBody))
		}
		return nil
	}

	err := c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, op)
	})
	if asyncAcknowledged {
		return nil, 0, ErrAsyncAcknowledged
	}
	return respBody, status, err
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	var t timeouter
	if te, ok := err.(timeouter); ok {
		t = te
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded")
}

// ---------------------------------------------------------------------------
// cat/indices, aliases, data streams
// ---------------------------------------------------------------------------

func (c *RESTClient) ListIndices(ctx context.Context) ([]model.IndexRecord, error) {
	q := url.Values{
		"format": {"json"},
		"bytes":  {"b"},
		"h":      {"index,uuid,health,pri,rep,docs.count,store.size,pri.store.size,creation.date.string"},
	}
	body, _, err := c.call(ctx, http.MethodGet, "/_cat/indices", q, nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	rows := gjson.ParseBytes(body).Array()
	out := make([]model.IndexRecord, 0, len(rows))
	for _, row := range rows {
		rec := model.IndexRecord{
			Name:          row.Get("index").String(),
			UUID:          row.Get("uuid").String(),
			Health:        row.Get("health").String(),
			PrimaryShards: int(row.Get("pri").Int()),
			ReplicaShards: int(row.Get("rep").Int()),
			DocsCount:     row.Get("docs.count").Int(),
		}
		if v := row.Get("store\\.size"); v.Exists() {
			rec.StoreSizeBytes = v.Int()
		} else {
			rec.StoreSizeBytes = row.Get("store.size").Int()
		}
		if v := row.Get("pri\\.store\\.size"); v.Exists() {
			rec.PrimarySizeBytes = v.Int()
		} else {
			rec.PrimarySizeBytes = row.Get("pri.store.size").Int()
		}
		creation := row.Get("creation\\.date\\.string")
		if !creation.Exists() {
			creation = row.Get("creation.date.string")
		}
		if t, perr := time.Parse(time.RFC3339, creation.String()); perr == nil {
			rec.CreationDate = t
		}
		if rec.Name == "" {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *RESTClient) GetIndexStats(ctx context.Context, name string) (model.IndexRecord, error) {
	all, err := c.ListIndices(ctx)
	if err != nil {
		return model.IndexRecord{}, err
	}
	for _, rec := range all {
		if rec.Name == name {
			return rec, nil
		}
	}
	return model.IndexRecord{}, errors.Malformed(name, "index not present in cat/indices response")
}

func (c *RESTClient) ListAliases(ctx context.Context) ([]model.AliasMember, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/_alias", nil, nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	var out []model.AliasMember
	gjson.ParseBytes(body).ForEach(func(indexKey, indexVal gjson.Result) bool {
		indexVal.Get("aliases").ForEach(func(aliasKey, aliasVal gjson.Result) bool {
			out = append(out, model.AliasMember{
				Alias:        aliasKey.String(),
				Index:        indexKey.String(),
				IsWriteIndex: aliasVal.Get("is_write_index").Bool(),
			})
			return true
		})
		return true
	})
	return out, nil
}

func (c *RESTClient) ListDataStreams(ctx context.Context) ([]model.DataStream, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/_data_stream", nil, nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	var out []model.DataStream
	gjson.GetBytes(body, "data_streams").ForEach(func(_, ds gjson.Result) bool {
		stream := model.DataStream{
			Name:       ds.Get("name").String(),
			Generation: int(ds.Get("generation").Int()),
		}
		ds.Get("indices").ForEach(func(_, idx gjson.Result) bool {
			stream.Indices = append(stream.Indices, idx.Get("index_name").String())
			return true
		})
		out = append(out, stream)
		return true
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Allocation / settings
// ---------------------------------------------------------------------------

func (c *RESTClient) GetTierSetting(ctx context.Context, index string) (string, string, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/"+index+"/_settings", nil, nil, defaultRequestTimeout)
	if err != nil {
		return "", "", err
	}

	// The response's single top-level key is the index name itself, which
	// may contain dots (dated indices) — walk it positionally rather than
	// building a dotted gjson path that would misparse those dots.
	var tierPreference, boxType string
	gjson.ParseBytes(body).ForEach(func(_, indexVal gjson.Result) bool {
		root := indexVal.Get("settings.index.routing.allocation")
		tierPreference = root.Get("include\\._tier_preference").String()
		boxType = root.Get("require\\.box_type").String()
		return false
	})
	return tierPreference, boxType, nil
}

func (c *RESTClient) PutTierSetting(ctx context.Context, index string, useTierPreference bool, tier string) error {
	var body map[string]interface{}
	if useTierPreference {
		preference := "data_hot"
		if tier == model.TierWarm {
			preference = "data_warm,data_hot"
		}
		body = map[string]interface{}{
			"index": map[string]interface{}{
				"routing": map[string]interface{}{
					"allocation": map[string]interface{}{
						"include": map[string]interface{}{"_tier_preference": preference},
					},
				},
			},
		}
	} else {
		boxType := "hot"
		if tier == model.TierWarm {
			boxType = "warm"
		}
		body = map[string]interface{}{
			"index": map[string]interface{}{
				"routing": map[string]interface{}{
					"allocation": map[string]interface{}{
						"require": map[string]interface{}{"box_type": boxType},
					},
				},
			},
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, _, err = c.call(ctx, http.MethodPut, "/"+index+"/_settings", nil, payload, defaultRequestTimeout)
	return err
}

// ---------------------------------------------------------------------------
// Index/alias lifecycle
// ---------------------------------------------------------------------------

func (c *RESTClient) CreateIndex(ctx context.Context, name string) error {
	_, _, err := c.call(ctx, http.MethodPut, "/"+name, nil, nil, defaultRequestTimeout)
	return err
}

func (c *RESTClient) UpdateAliases(ctx context.Context, actions []AliasAction) error {
	payload, err := json.Marshal(map[string]interface{}{"actions": actions})
	if err != nil {
		return err
	}
	_, _, err = c.call(ctx, http.MethodPost, "/_aliases", nil, payload, defaultRequestTimeout)
	return err
}

func (c *RESTClient) Rollover(ctx context.Context, alias string) (RolloverResult, error) {
	body, _, err := c.call(ctx, http.MethodPost, "/"+alias+"/_rollover", nil, []byte("{}"), defaultRequestTimeout)
	if err != nil {
		return RolloverResult{}, err
	}
	res := gjson.ParseBytes(body)
	return RolloverResult{
		OldIndex:   res.Get("old_index").String(),
		NewIndex:   res.Get("new_index").String(),
		RolledOver: res.Get("rolled_over").Bool(),
	}, nil
}

func (c *RESTClient) DeleteIndices(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	_, _, err := c.call(ctx, http.MethodDelete, "/"+strings.Join(names, ","), nil, nil, defaultRequestTimeout)
	return err
}

func (c *RESTClient) DeleteDataStream(ctx context.Context, name string) error {
	_, _, err := c.call(ctx, http.MethodDelete, "/_data_stream/"+name, nil, nil, defaultRequestTimeout)
	return err
}

func (c *RESTClient) ForceMerge(ctx context.Context, index string) error {
	q := url.Values{"max_num_segments": {"1"}}
	_, _, err := c.callWithTimeoutPolicy(ctx, http.MethodPost, "/"+index+"/_forcemerge", q, nil, defaultRequestTimeout, true)
	if err == ErrAsyncAcknowledged {
		// A forcemerge timeout is treated as success-in-progress.
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

func (c *RESTClient) SnapshotList(ctx context.Context, repo string) ([]model.SnapshotInfo, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/_snapshot/"+repo+"/_all", nil, nil, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	var out []model.SnapshotInfo
	gjson.GetBytes(body, "snapshots").ForEach(func(_, snap gjson.Result) bool {
		full := snap.Get("snapshot").String()
		short, ageDays := parseSnapshotName(full)
		out = append(out, model.SnapshotInfo{
			Repository: repo,
			FullName:   full,
			ShortName:  short,
			AgeDays:    ageDays,
		})
		return true
	})
	return out, nil
}

func (c *RESTClient) SnapshotCreate(ctx context.Context, repo, name string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	q := url.Values{"wait_for_completion": {"false"}}
	_, _, err = c.call(ctx, http.MethodPut, "/_snapshot/"+repo+"/"+name, q, payload, defaultRequestTimeout)
	return err
}

func (c *RESTClient) SnapshotDelete(ctx context.Context, repo, name string) error {
	_, _, err := c.call(ctx, http.MethodDelete, "/_snapshot/"+repo+"/"+name, nil, nil, defaultRequestTimeout)
	return err
}

func (c *RESTClient) SnapshotRestore(ctx context.Context, repo, snap string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	_, _, err = c.call(ctx, http.MethodPost, "/_snapshot/"+repo+"/"+snap+"/_restore", nil, payload, defaultRequestTimeout)
	return err
}

// ---------------------------------------------------------------------------
// Cluster health / stats
// ---------------------------------------------------------------------------

func (c *RESTClient) ClusterHealth(ctx context.Context) (string, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/_cluster/health", nil, nil, healthRequestTimeout)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "status").String(), nil
}

func (c *RESTClient) ClusterStats(ctx context.Context) (ClusterStats, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/_cluster/stats", nil, nil, defaultRequestTimeout)
	if err != nil {
		return ClusterStats{}, err
	}
	return ClusterStats{
		TotalStoreSizeBytes: gjson.GetBytes(body, "indices.store.size_in_bytes").Int(),
	}, nil
}

func (c *RESTClient) NodeStatsJVM(ctx context.Context) (NodeJVMStats, error) {
	body, _, err := c.call(ctx, http.MethodGet, "/_nodes/stats/jvm", nil, nil, defaultRequestTimeout)
	if err != nil {
		return NodeJVMStats{}, err
	}

	lowest := -1
	gjson.GetBytes(body, "nodes").ForEach(func(_, node gjson.Result) bool {
		count := int(node.Get("jvm.threads.count").Int())
		if lowest == -1 || count < lowest {
			lowest = count
		}
		return true
	})
	if lowest == -1 {
		lowest = 0
	}
	return NodeJVMStats{LowestLiveThreadCount: lowest}, nil
}

// ---------------------------------------------------------------------------
// Search / aggregations
// ---------------------------------------------------------------------------

func (c *RESTClient) NewestTimestamp(ctx context.Context, index, field string) (time.Time, bool, error) {
	dsl := map[string]interface{}{
		"size": 1,
		"sort": []map[string]interface{}{{field: "desc"}},
		"_source": []string{field},
	}
	payload, err := json.Marshal(dsl)
	if err != nil {
		return time.Time{}, false, err
	}
	body, _, err := c.call(ctx, http.MethodPost, "/"+index+"/_search", nil, payload, defaultRequestTimeout)
	if err != nil {
		return time.Time{}, false, err
	}

	hit := gjson.GetBytes(body, "hits.hits.0._source."+field)
	if !hit.Exists() {
		return time.Time{}, false, nil
	}
	if t, perr := time.Parse(time.RFC3339, hit.String()); perr == nil {
		return t, true, nil
	}
	if ms := hit.Int(); ms > 0 {
		return time.UnixMilli(ms), true, nil
	}
	return time.Time{}, false, nil
}

func (c *RESTClient) Aggregate(ctx context.Context, spec AggregateSpec) ([]AggregateBucket, error) {
	dsl := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"by_index": map[string]interface{}{
				"terms": map[string]interface{}{"field": "_index", "size": 10000},
				"aggs": map[string]interface{}{
					"newest": map[string]interface{}{"max": map[string]interface{}{"field": spec.TimestampField}},
				},
			},
		},
	}
	payload, err := json.Marshal(dsl)
	if err != nil {
		return nil, err
	}
	body, _, err := c.call(ctx, http.MethodPost, "/"+spec.IndexPattern+"/_search", nil, payload, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	var out []AggregateBucket
	gjson.GetBytes(body, "aggregations.by_index.buckets").ForEach(func(_, bucket gjson.Result) bool {
		out = append(out, AggregateBucket{
			Index:              bucket.Get("key").String(),
			MaxTimestampMillis: bucket.Get("newest.value").Int(),
		})
		return true
	})
	return out, nil
}

func (c *RESTClient) DeviceValueCount(ctx context.Context, spec DeviceAggregateSpec) (map[string]int64, error) {
	query := spec.Search
	if query == nil {
		query = map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	dsl := map[string]interface{}{
		"size":  0,
		"query": query,
		"aggs": map[string]interface{}{
			"assets": map[string]interface{}{
				"terms": map[string]interface{}{"field": spec.TrackingField, "size": 100000},
			},
		},
	}
	payload, err := json.Marshal(dsl)
	if err != nil {
		return nil, err
	}
	body, _, err := c.call(ctx, http.MethodPost, "/"+spec.Index+"/_search", nil, payload, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64)
	gjson.GetBytes(body, "aggregations.assets.buckets").ForEach(func(_, bucket gjson.Result) bool {
		out[bucket.Get("key").String()] = bucket.Get("doc_count").Int()
		return true
	})
	return out, nil
}

// ---------------------------------------------------------------------------
// Bulk / create-only writes
// ---------------------------------------------------------------------------

func (c *RESTClient) BulkIndex(ctx context.Context, index string, docs []map[string]interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, doc := range docs {
		action, err := json.Marshal(map[string]interface{}{"index": map[string]interface{}{"_index": index}})
		if err != nil {
			return err
		}
		buf.Write(action)
		buf.WriteByte('\n')
		encoded, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	_, _, err := c.call(ctx, http.MethodPost, "/_bulk", nil, buf.Bytes(), defaultRequestTimeout)
	return err
}

func (c *RESTClient) CreateOnlyDocument(ctx context.Context, index, id string, doc interface{}) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	q := url.Values{"op_type": {"create"}}
	_, _, err = c.call(ctx, http.MethodPut, "/"+index+"/_doc/"+id, q, payload, defaultRequestTimeout)
	return err
}

// QueuedJobIndices returns the set of index names referenced by documents
// already present in jobsIndex, so the job-queue engine never emits a
// second job for an index an operator has not yet processed. A missing
// jobs index is an empty set, not an error.
func (c *RESTClient) QueuedJobIndices(ctx context.Context, jobsIndex string) (map[string]bool, error) {
	dsl := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"queued": map[string]interface{}{
				"terms": map[string]interface{}{"field": "indices.keyword", "size": 100000},
			},
		},
	}
	payload, err := json.Marshal(dsl)
	if err != nil {
		return nil, err
	}
	body, status, err := c.call(ctx, http.MethodPost, "/"+jobsIndex+"/_search", nil, payload, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return map[string]bool{}, nil
	}

	out := make(map[string]bool)
	gjson.GetBytes(body, "aggregations.queued.buckets").ForEach(func(_, bucket gjson.Result) bool {
		out[bucket.Get("key").String()] = true
		return true
	})
	return out, nil
}
