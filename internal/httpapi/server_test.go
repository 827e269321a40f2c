package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/kvscope/internal/bench"
	"github.com/torosent/kvscope/internal/httpapi"
	"github.com/torosent/kvscope/internal/metrics"
	"github.com/torosent/kvscope/internal/publish"
	"github.com/torosent/kvscope/internal/seed"
	"github.com/torosent/kvscope/internal/sse"
	"github.com/torosent/kvscope/internal/store"
	"github.com/torosent/kvscope/internal/websocket"
	"github.com/torosent/kvscope/internal/workload"
)

type fixture struct {
	srv  *httptest.Server
	orch *bench.Orchestrator
	agg  *metrics.Aggregator
	pub  *publish.Publisher
	fail *atomic.Bool
}

func newFixture(t *testing.T, mutate func(*httpapi.Options)) *fixture {
	t.Helper()
	fail := &atomic.Bool{}
	mem := store.NewMemory(store.MemoryOptions{
		Fail: func(string) error {
			if fail.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	})
	t.Cleanup(func() { _ = mem.Close() })
	if _, err := seed.Seed(context.Background(), mem, seed.Options{Users: workload.DefaultUsers, Products: workload.DefaultProducts}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	gen := workload.NewGenerator(mem)
	agg := metrics.NewAggregator(metrics.AggregatorOptions{})
	orch := bench.NewOrchestrator(bench.Options{
		Aggregator: agg,
		Source:     gen,
		Limits:     bench.DefaultLimits,
	})
	t.Cleanup(func() { _ = orch.Stop() })
	pub := publish.New(agg, publish.Options{})

	opts := httpapi.Options{
		Orchestrator: orch,
		Publisher:    pub,
		Generator:    gen,
		Store:        mem,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := httpapi.New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, orch: orch, agg: agg, pub: pub, fail: fail}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

type envelope struct {
	Data   map[string]any `json:"data"`
	Timing struct {
		TotalUs    int64 `json:"total_us"`
		StoreUs    int64 `json:"store_us"`
		OverheadUs int64 `json:"overhead_us"`
	} `json:"timing"`
}

type errorBody struct {
	Error  string   `json:"error"`
	Status int      `json:"status"`
	Issues []string `json:"issues"`
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func TestGetUserReturnsEnvelopeAndRecords(t *testing.T) {
	f := newFixture(t, nil)

	resp, data := f.do(t, http.MethodGet, "/api/users/"+workload.UserID(42), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	env := decode[envelope](t, data)
	if env.Data["id"] != workload.UserID(42) {
		t.Errorf("data.id = %v", env.Data["id"])
	}
	if env.Timing.TotalUs < env.Timing.StoreUs || env.Timing.OverheadUs != env.Timing.TotalUs-env.Timing.StoreUs {
		t.Errorf("inconsistent timing %+v", env.Timing)
	}

	if _, err := strconv.ParseInt(resp.Header.Get("X-Response-Time-Us"), 10, 64); err != nil {
		t.Errorf("X-Response-Time-Us = %q", resp.Header.Get("X-Response-Time-Us"))
	}
	if st := resp.Header.Get("Server-Timing"); !strings.HasPrefix(st, "total;dur=") {
		t.Errorf("Server-Timing = %q", st)
	}

	snap := f.agg.Snapshot()
	if snap.TotalReads != 1 || snap.TotalRequests != 1 {
		t.Errorf("aggregator counts = %d reads / %d total", snap.TotalReads, snap.TotalRequests)
	}
	if len(snap.RecentSamples) != 1 || snap.RecentSamples[0].Endpoint != workload.EndpointGetUser {
		t.Errorf("feed = %+v", snap.RecentSamples)
	}
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t, nil)
	resp, data := f.do(t, http.MethodGet, "/api/products/"+workload.ProductID(7), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	env := decode[envelope](t, data)
	if env.Data["id"] != workload.ProductID(7) {
		t.Errorf("data.id = %v", env.Data["id"])
	}
}

func TestMissingRecordIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		path string
	}{
		{"user", "/api/users/usr_99999999"},
		{"product", "/api/products/prod_9999"},
		{"session", "/api/sessions/sess_deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.do(t, http.MethodGet, tt.path, "")
			if resp.StatusCode != http.StatusNotFound {
				t.Fatalf("status = %d, body %s", resp.StatusCode, data)
			}
			body := decode[errorBody](t, data)
			if body.Status != http.StatusNotFound || body.Error == "" {
				t.Errorf("error body = %+v", body)
			}
		})
	}

	if snap := f.agg.Snapshot(); snap.TotalErrors != 3 {
		t.Errorf("errors recorded = %d, want 3", snap.TotalErrors)
	}
}

func TestStoreFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, nil)
	f.fail.Store(true)

	resp, data := f.do(t, http.MethodGet, "/api/users/"+workload.UserID(1), "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if body := decode[errorBody](t, data); body.Status != http.StatusBadGateway {
		t.Errorf("error body = %+v", body)
	}
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t, nil)

	resp, data := f.do(t, http.MethodPost, "/api/users", `{"name":"Ada","email":"ada@example.com"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	env := decode[envelope](t, data)
	if env.Data["name"] != "Ada" || env.Data["email"] != "ada@example.com" {
		t.Errorf("data = %v", env.Data)
	}
	id, _ := env.Data["id"].(string)
	if id == "" {
		t.Fatal("created user has no id")
	}

	resp, data = f.do(t, http.MethodGet, "/api/users/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read back status = %d, body %s", resp.StatusCode, data)
	}

	snap := f.agg.Snapshot()
	if snap.TotalWrites != 1 || snap.TotalReads != 1 {
		t.Errorf("counts = %d writes / %d reads", snap.TotalWrites, snap.TotalReads)
	}
}

func TestCreateRejectsBadBodies(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"user missing email", "/api/users", `{"name":"Ada"}`},
		{"user malformed", "/api/users", `{"name":`},
		{"session missing user", "/api/sessions", `{}`},
		{"session empty body", "/api/sessions", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.do(t, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", resp.StatusCode, data)
			}
		})
	}
	if snap := f.agg.Snapshot(); snap.TotalRequests != 0 {
		t.Errorf("rejected bodies should not be recorded, got %d", snap.TotalRequests)
	}
}

func TestCreateSessionThenRead(t *testing.T) {
	f := newFixture(t, nil)

	resp, data := f.do(t, http.MethodPost, "/api/sessions", `{"user_id":"`+workload.UserID(3)+`"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	env := decode[envelope](t, data)
	id, _ := env.Data["id"].(string)
	if !strings.HasPrefix(id, "sess_") {
		t.Fatalf("session id = %q", id)
	}
	if env.Data["ttl_secs"] != float64(workload.SessionTTLSecs) {
		t.Errorf("ttl_secs = %v", env.Data["ttl_secs"])
	}

	resp, data = f.do(t, http.MethodGet, "/api/sessions/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read back status = %d, body %s", resp.StatusCode, data)
	}
	if got := decode[envelope](t, data); got.Data["user_id"] != workload.UserID(3) {
		t.Errorf("user_id = %v", got.Data["user_id"])
	}
}

func TestBenchmarkControl(t *testing.T) {
	f := newFixture(t, nil)

	resp, data := f.do(t, http.MethodGet, "/api/benchmark/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if st := decode[bench.Status](t, data); st.Running {
		t.Fatal("fresh server reports a running benchmark")
	}

	resp, data = f.do(t, http.MethodPost, "/api/benchmark/stop", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("stop while idle = %d, body %s", resp.StatusCode, data)
	}

	resp, data = f.do(t, http.MethodPost, "/api/benchmark/start", `{"concurrency":2,"duration_secs":5,"read_pct":50}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start = %d, body %s", resp.StatusCode, data)
	}
	st := decode[bench.Status](t, data)
	if !st.Running || st.RunID == "" || st.Config == nil || st.Config.Concurrency != 2 || st.Config.ReadPct != 50 {
		t.Fatalf("start status = %+v", st)
	}

	resp, data = f.do(t, http.MethodPost, "/api/benchmark/start", `{}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start = %d, body %s", resp.StatusCode, data)
	}

	resp, data = f.do(t, http.MethodPost, "/api/benchmark/stop", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop = %d, body %s", resp.StatusCode, data)
	}
	st = decode[bench.Status](t, data)
	if st.Running || st.State != bench.StateFinished || st.Result == nil {
		t.Fatalf("stop status = %+v", st)
	}
}

func TestStartUsesDefaults(t *testing.T) {
	f := newFixture(t, nil)

	resp, data := f.do(t, http.MethodPost, "/api/benchmark/start", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start = %d, body %s", resp.StatusCode, data)
	}
	st := decode[bench.Status](t, data)
	if st.Config == nil {
		t.Fatal("no config in status")
	}
	if st.Config.Concurrency != bench.DefaultConcurrency || st.Config.ReadPct != bench.DefaultReadPct ||
		st.Config.DurationSecs != bench.DefaultDuration.Seconds() {
		t.Errorf("config = %+v", *st.Config)
	}
	if err := f.orch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		body   string
		issues int
	}{
		{"zero concurrency", `{"concurrency":0}`, 1},
		{"everything wrong", `{"concurrency":501,"duration_secs":-1,"read_pct":101}`, 3},
		{"bad arrival model", `{"rate":10,"arrival_model":"burst"}`, 1},
		{"over max duration", `{"duration_secs":301}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := f.do(t, http.MethodPost, "/api/benchmark/start", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", resp.StatusCode, data)
			}
			body := decode[errorBody](t, data)
			if len(body.Issues) != tt.issues {
				t.Errorf("issues = %v, want %d", body.Issues, tt.issues)
			}
		})
	}

	resp, data := f.do(t, http.MethodPost, "/api/benchmark/start", `{"concurrency":"ten"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, body %s", resp.StatusCode, data)
	}
	if f.orch.Status().Running {
		t.Error("rejected start left a run going")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/users/"+workload.UserID(1), "")

	resp, data := f.do(t, http.MethodGet, "/api/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	snap := decode[metrics.Snapshot](t, data)
	if snap.TotalRequests != 1 || snap.StoreRead.NoData {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMetricsStreamSSE(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/users/"+workload.UserID(1), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := sse.NewClient(sse.Config{URL: f.srv.URL + "/api/metrics/stream"})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	ev, err := c.ReadEvent(ctx)
	if err != nil {
		t.Fatalf("first event: %v", err)
	}
	if snap := decode[metrics.Snapshot](t, []byte(ev.Data)); snap.TotalRequests != 1 {
		t.Errorf("initial snapshot total = %d, want 1", snap.TotalRequests)
	}

	f.do(t, http.MethodGet, "/api/users/"+workload.UserID(2), "")
	f.pub.Publish()
	ev, err = c.ReadEvent(ctx)
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if snap := decode[metrics.Snapshot](t, []byte(ev.Data)); snap.TotalRequests != 2 {
		t.Errorf("published snapshot total = %d, want 2", snap.TotalRequests)
	}
}

func TestMetricsStreamKeepAlive(t *testing.T) {
	f := newFixture(t, func(o *httpapi.Options) { o.KeepAlive = 20 * time.Millisecond })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/metrics/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		if sc.Text() == ": keep-alive" {
			return
		}
	}
	t.Fatalf("no keep-alive comment before stream ended: %v", sc.Err())
}

func TestMetricsWebSocket(t *testing.T) {
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/metrics/ws"
	c := websocket.NewClient(websocket.Config{URL: url})
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	var snap metrics.Snapshot
	if err := c.ReceiveJSON(ctx, &snap); err != nil {
		t.Fatalf("initial snapshot: %v", err)
	}
	if snap.TotalRequests != 0 {
		t.Errorf("initial total = %d", snap.TotalRequests)
	}

	f.do(t, http.MethodPost, "/api/sessions", `{"user_id":"usr_00000001"}`)
	f.pub.Publish()
	if err := c.ReceiveJSON(ctx, &snap); err != nil {
		t.Fatalf("published snapshot: %v", err)
	}
	if snap.TotalWrites != 1 {
		t.Errorf("writes = %d, want 1", snap.TotalWrites)
	}
}

func TestPrometheusAndHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/users/"+workload.UserID(1), "")

	resp, data := f.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}
	for _, want := range []string{"kvscope_requests_total", "kvscope_benchmark_running 0"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("/metrics missing %q", want)
		}
	}

	resp, data = f.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz = %d, body %s", resp.StatusCode, data)
	}
	f.fail.Store(true)
	resp, _ = f.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/healthz with failing store = %d", resp.StatusCode)
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	resp, data := f.do(t, http.MethodGet, "/api/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, data); body.Status != http.StatusNotFound {
		t.Errorf("body = %+v", body)
	}
	resp, _ = f.do(t, http.MethodDelete, "/api/benchmark/status", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("DELETE status = %d", resp.StatusCode)
	}
}

func TestRequestSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, func(o *httpapi.Options) { o.Tracer = tp.Tracer("test") })
	f.do(t, http.MethodGet, "/api/users/"+workload.UserID(5), "")

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"GET /api/users/{id}", "kv " + workload.EndpointGetUser} {
		if !names[want] {
			t.Errorf("missing span %q, got %v", want, names)
		}
	}
}

func TestNewRequiresCore(t *testing.T) {
	if _, err := httpapi.New(httpapi.Options{}); err == nil {
		t.Fatal("expected an error without an orchestrator")
	}
}
