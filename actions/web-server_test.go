package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/tasks"
)

type testWeb struct {
	t      *testing.T
	server *webServer
	http   *httptest.Server
}

func newTestWeb(t *testing.T, web *WebServerConfig) *testWeb {
	s := newWebServer(web)
	h := httptest.NewServer(s.srv.Handler)
	t.Cleanup(func() {
		h.Close()
		s.cancel()
	})
	return &testWeb{t: t, server: s, http: h}
}

// do sends a request and decodes the JSON response into out.
func (w *testWeb) do(method, path string, body interface{}, out interface{}) int {
	var b []byte
	if body != nil {
		var err error
		if b, err = json.Marshal(body); err != nil {
			w.t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, w.http.URL+path, bytes.NewReader(b))
	if err != nil {
		w.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.http.Client().Do(req)
	if err != nil {
		w.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			w.t.Fatalf("unexpected content type %q for %v %v", ct, method, path)
		}
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			w.t.Fatalf("unable to decode response to %v %v: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestWebServerConnections(t *testing.T) {
	var hits int32
	api := stockAPI(t, &hits)
	store := config.NewConfigFileWithDir(t.TempDir(), "connections.yaml")
	if err := store.SaveConnection(stockDetails(api.URL)); err != nil {
		t.Fatal(err)
	}
	w := newTestWeb(t, &WebServerConfig{Log: log, Port: 1, Connections: store, Client: api.Client()})

	// Test 1 - health.
	simple := ResponseSimple{}
	if code := w.do(http.MethodGet, "/health", nil, &simple); code != http.StatusOK || simple.Status != Okay {
		t.Fatalf("Test 1 unexpected response %v %+v", code, simple)
	}

	// Test 2 - list connections.
	list := ResponseConnectionList{}
	if code := w.do(http.MethodGet, "/connections", nil, &list); code != http.StatusOK || len(list.Connections) != 1 ||
		list.Connections[0] != (ConnectionListItem{Name: "stock", Type: "api"}) {
		t.Fatalf("Test 2 unexpected response %v %+v", code, list)
	}

	// Test 3 - previews are cached.
	p := ResponsePreview{}
	if code := w.do(http.MethodGet, "/connections/stock/tables/items/preview?recordsKey=items", nil, &p); code != http.StatusOK {
		t.Fatalf("Test 3 unexpected status %v: %+v", code, p)
	}
	if p.Cached || p.TotalRows != 2 || strings.Join(p.Columns, ",") != "sku,qty" || p.Rows[1][0] != "b2" {
		t.Fatalf("Test 3 unexpected preview %+v", p)
	}
	p = ResponsePreview{}
	w.do(http.MethodGet, "/connections/stock/tables/items/preview?recordsKey=items", nil, &p)
	if n := atomic.LoadInt32(&hits); !p.Cached || n != 1 {
		t.Fatalf("Test 3 expected a cached preview, got %+v after %v requests", p, n)
	}

	// Test 4 - previews of unknown connections fail.
	if code := w.do(http.MethodGet, "/connections/nope/tables/items/preview", nil, &p); code != http.StatusBadRequest || p.Status != Error {
		t.Fatalf("Test 4 unexpected response %v %+v", code, p)
	}

	// Test 5 - connection test.
	ct := ResponseConnectionTest{}
	if code := w.do(http.MethodPost, "/connections/stock/test", nil, &ct); code != http.StatusOK || !ct.Result.OK || ct.Result.StatusCode != http.StatusOK {
		t.Fatalf("Test 5 unexpected response %v %+v", code, ct)
	}

	// Test 6 - methods are enforced.
	if code := w.do(http.MethodGet, "/connections/stock/test", nil, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("Test 6 unexpected status %v", code)
	}
}

func TestWebServerTasksAndIntegrations(t *testing.T) {
	store := config.NewConfigFileWithDir(t.TempDir(), "connections.yaml")
	q := tasks.NewMemoryQueue(10)
	dir := t.TempDir()
	w := newTestWeb(t, &WebServerConfig{
		Log:          log,
		Port:         1,
		Connections:  store,
		Queue:        q,
		Orchestrator: &pipeline.DirectoryOrchestrator{Log: log, Dir: dir},
	})

	// Test 1 - submit a run.
	rt := ResponseTask{}
	rc := pipeline.RunConfig{SourceConnection: "stock", SourceTable: "items", Target: pipeline.Target{Connection: "stdout"}}
	if code := w.do(http.MethodPost, "/tasks", rc, &rt); code != http.StatusAccepted || rt.TaskId == "" {
		t.Fatalf("Test 1 unexpected response %v %+v", code, rt)
	}

	// Test 2 - fetch its status.
	st := ResponseTask{}
	if code := w.do(http.MethodGet, "/tasks/"+rt.TaskId, nil, &st); code != http.StatusOK || st.Task == nil || st.Task.Status != tasks.StatusPending {
		t.Fatalf("Test 2 unexpected response %v %+v", code, st)
	}

	// Test 3 - unknown tasks and invalid runs.
	if code := w.do(http.MethodGet, "/tasks/missing", nil, &st); code != http.StatusNotFound || st.Status != Error {
		t.Fatalf("Test 3 unexpected response %v %+v", code, st)
	}
	if code := w.do(http.MethodPost, "/tasks", pipeline.RunConfig{SourceConnection: "stock"}, &st); code != http.StatusBadRequest {
		t.Fatalf("Test 3 unexpected status %v", code)
	}

	// Test 4 - submit an integration.
	d := pipeline.NewDefinition("Stock Daily", "stock", "lake")
	d.SourceType, d.TargetType = "api", "s3"
	d.SourceTable, d.TargetTable = "items", "stock"
	d.IsFrequency, d.Frequency, d.ScheduleTime = true, "Daily", "02:00:00"
	ri := ResponseIntegration{}
	if code := w.do(http.MethodPost, "/integrations", d, &ri); code != http.StatusCreated || ri.Location != filepath.Join(dir, "stockdaily.json") {
		t.Fatalf("Test 4 unexpected response %v %+v", code, ri)
	}
	if _, err := os.Stat(ri.Location); err != nil {
		t.Fatalf("Test 4 expected the integration file: %v", err)
	}

	// Test 5 - invalid integrations are rejected.
	d.ScheduleTime = "2am"
	if code := w.do(http.MethodPost, "/integrations", d, &ri); code != http.StatusBadRequest || ri.Status != Error {
		t.Fatalf("Test 5 unexpected response %v %+v", code, ri)
	}
}

func TestWebServerWithoutQueue(t *testing.T) {
	store := config.NewConfigFileWithDir(t.TempDir(), "connections.yaml")
	w := newTestWeb(t, &WebServerConfig{Log: log, Port: 1, Connections: store})

	// Test 1 - optional backends answer 503.
	if code := w.do(http.MethodGet, "/tasks/abc", nil, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("Test 1 unexpected status %v", code)
	}
	if code := w.do(http.MethodPost, "/integrations", pipeline.Definition{}, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("Test 1 unexpected status %v", code)
	}
}

func TestWebServerPipes(t *testing.T) {
	api := stockAPI(t, nil)
	store := config.NewConfigFileWithDir(t.TempDir(), "connections.yaml")
	if err := store.SaveConnection(stockDetails(api.URL)); err != nil {
		t.Fatal(err)
	}
	w := newTestWeb(t, &WebServerConfig{Log: log, Port: 1, Connections: store, Client: api.Client()})

	// Test 1 - launch a run.
	rp := ResponsePipe{}
	rc := pipeline.RunConfig{
		SourceConnection: "stock",
		SourceTable:      "items",
		RecordsKey:       "items",
		Target:           pipeline.Target{Connection: "csv", Directory: t.TempDir()},
	}
	if code := w.do(http.MethodPost, urlContext4Launch, rc, &rp); code != http.StatusAccepted || rp.PipeId == "" {
		t.Fatalf("Test 1 unexpected response %v %+v", code, rp)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !w.server.runs.waitAll(ctx) {
		t.Fatal("Test 1 timed out waiting for the run")
	}

	// Test 2 - list, status and stats.
	list := ResponsePipeList{}
	if code := w.do(http.MethodGet, "/pipes", nil, &list); code != http.StatusOK || len(list.PipeList) != 1 ||
		list.PipeList[0].PipeId != rp.PipeId || list.PipeList[0].PipeDescription != "stock.items" {
		t.Fatalf("Test 2 unexpected list %v %+v", code, list)
	}
	status := ResponsePipeStatus{}
	w.do(http.MethodGet, "/pipes/"+rp.PipeId+"/status", nil, &status)
	if status.PipeStatus.Status != pipeline.StatusComplete || status.Result.RowsWritten != 2 {
		t.Fatalf("Test 2 unexpected status %+v", status)
	}
	stats := ResponsePipeStats{}
	if code := w.do(http.MethodGet, "/pipes/"+rp.PipeId+"/stats", nil, &stats); code != http.StatusOK || stats.Status != Okay {
		t.Fatalf("Test 2 unexpected stats %v %+v", code, stats)
	}

	// Test 3 - stopping a finished run.
	if code := w.do(http.MethodPost, "/pipes/"+rp.PipeId+"/stop", nil, &rp); code != http.StatusOK || rp.Status != Error {
		t.Fatalf("Test 3 unexpected response %v %+v", code, rp)
	}

	// Test 4 - unknown pipes.
	if code := w.do(http.MethodGet, "/pipes/missing/status", nil, &status); code != http.StatusNotFound {
		t.Fatalf("Test 4 unexpected status %v", code)
	}
	if code := w.do(http.MethodPost, "/pipes/missing/stop", nil, &rp); code != http.StatusNotFound {
		t.Fatalf("Test 4 unexpected status %v", code)
	}

	// Test 5 - invalid launches.
	if code := w.do(http.MethodPost, urlContext4Launch, pipeline.RunConfig{}, &rp); code != http.StatusBadRequest {
		t.Fatalf("Test 5 unexpected status %v", code)
	}
}

func TestWebServerStop(t *testing.T) {
	store := config.NewConfigFileWithDir(t.TempDir(), "connections.yaml")
	w := newTestWeb(t, &WebServerConfig{Log: log, Port: 1, Connections: store})

	// Test 1 - POST /stop signals the server loop.
	if code := w.do(http.MethodPost, "/stop", nil, nil); code != http.StatusOK {
		t.Fatalf("Test 1 unexpected status %v", code)
	}
	select {
	case <-w.server.chanStop:
	case <-time.After(time.Second):
		t.Fatal("Test 1 expected a stop request")
	}
	if err := w.server.shutdown(); err != nil {
		t.Fatal(err)
	}
}
