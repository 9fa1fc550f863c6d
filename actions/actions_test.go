package actions

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/config"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/tasks"
	"github.com/relloyd/openetl/tasks/mocks"
)

var log = logger.NewLogger("actions test", "error", true)

const stockBody = `{"items":[{"sku":"a1","qty":2},{"sku":"b2","qty":5}]}`

// stockAPI serves stockBody and counts requests.
func stockAPI(t *testing.T, hits *int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		_, _ = w.Write([]byte(stockBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func stockDetails(baseURL string) connection.Details {
	def := connection.APIDefinition{
		SourceName: "stock",
		BaseURL:    baseURL,
		Tables:     map[string]string{"items": "items"},
		AuthType:   constants.AuthTypeNone,
	}
	return def.ToDetails("stock")
}

type mapLoader map[string]connection.Details

func (m mapLoader) LoadConnection(name string) (connection.Details, error) {
	d, ok := m[name]
	if !ok {
		return d, errors.Errorf("connection %q not found", name)
	}
	return d, nil
}

func TestConnectionAddListRemove(t *testing.T) {
	f := config.NewConfigFileWithDir(t.TempDir(), "connections.yaml")
	var out bytes.Buffer
	cfg := &ConnectionConfig{
		Log:         log,
		ConfigFile:  f,
		LogicalName: "stock",
		Type:        constants.ConnectionTypeAPI,
		Data:        stockDetails("https://example.com/api").Data,
		Out:         &out,
	}

	// Test 1 - a valid api connection is saved.
	if err := RunConnectionAdd(cfg); err != nil {
		t.Fatal(err)
	}
	got, err := f.LoadConnection("stock")
	if err != nil || got.Data[connection.KeyBaseURL] != "https://example.com/api" {
		t.Fatalf("Test 1 unexpected connection %+v, %v", got, err)
	}

	// Test 2 - an existing connection needs force.
	if err = RunConnectionAdd(cfg); err == nil {
		t.Fatal("Test 2 expected an error adding a duplicate connection")
	}
	cfg.Force = true
	if err = RunConnectionAdd(cfg); err != nil {
		t.Fatalf("Test 2 unexpected error with force: %v", err)
	}

	// Test 3 - names with periods and invalid details are rejected.
	bad := *cfg
	bad.LogicalName = "a.b"
	if err = RunConnectionAdd(&bad); err == nil {
		t.Fatal("Test 3 expected an error for a name containing a period")
	}
	bad = *cfg
	bad.LogicalName = "pg"
	bad.Type = constants.ConnectionTypePostgres
	bad.Data = map[string]string{}
	if err = RunConnectionAdd(&bad); err == nil || !strings.Contains(err.Error(), connection.KeyDSN) {
		t.Fatalf("Test 3 expected an error naming the missing dsn, got %v", err)
	}
	bad.Type = "oracle"
	if err = RunConnectionAdd(&bad); err == nil {
		t.Fatal("Test 3 expected an error for an unsupported type")
	}

	// Test 4 - list shows the connection and ListConnections returns it.
	out.Reset()
	if err = RunConnectionList(cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "stock:") || !strings.Contains(out.String(), "type = api") {
		t.Fatalf("Test 4 unexpected list output %q", out.String())
	}
	all, err := ListConnections(f)
	if err != nil || len(all) != 1 || all[0].LogicalName != "stock" {
		t.Fatalf("Test 4 unexpected connections %+v, %v", all, err)
	}

	// Test 5 - remove.
	if err = RunConnectionRemove(cfg); err != nil {
		t.Fatal(err)
	}
	if _, err = f.LoadConnection("stock"); err == nil {
		t.Fatal("Test 5 expected the connection to be removed")
	}
}

func TestDefaults(t *testing.T) {
	f := config.NewConfigFileWithDir(t.TempDir(), "config.yaml")
	var out bytes.Buffer

	// Test 1 - add then list.
	if err := RunDefaultAdd(&DefaultAddConfig{ConfigFile: f, Key: "log-level", Value: "debug", Out: &out}); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := RunDefaultList(f, &out); err != nil || out.String() != "log-level: debug\n" {
		t.Fatalf("Test 1 unexpected list %q, %v", out.String(), err)
	}

	// Test 2 - existing keys need force.
	if err := RunDefaultAdd(&DefaultAddConfig{ConfigFile: f, Key: "log-level", Value: "info"}); err == nil {
		t.Fatal("Test 2 expected an error without force")
	}
	if err := RunDefaultAdd(&DefaultAddConfig{ConfigFile: f, Key: "log-level", Value: "info", Force: true, Out: &out}); err != nil {
		t.Fatal(err)
	}

	// Test 3 - remove.
	if err := RunDefaultRemove(&DefaultRemoveConfig{ConfigFile: f, Key: "log-level", Out: &out}); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := RunDefaultList(f, &out); err != nil || out.String() != "" {
		t.Fatalf("Test 3 unexpected list %q, %v", out.String(), err)
	}
}

func TestFetch(t *testing.T) {
	srv := stockAPI(t, nil)
	loader := mapLoader{"stock": stockDetails(srv.URL), "db": {Type: constants.ConnectionTypeSqlite, LogicalName: "db"}}
	var out bytes.Buffer
	cfg := &FetchConfig{
		Log:          log,
		Connections:  loader,
		Client:       srv.Client(),
		SourceString: connection.ConnectionObject{ConnectionObject: "stock.items"},
		RecordsKey:   "items",
		Out:          &out,
	}

	// Test 1 - csv output.
	if err := RunFetch(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if out.String() != "sku,qty\na1,2\nb2,5\n" {
		t.Fatalf("Test 1 unexpected output %q", out.String())
	}

	// Test 2 - json output.
	out.Reset()
	cfg.Format = OutputFormatJSON
	if err := RunFetch(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"sku": "a1"`) {
		t.Fatalf("Test 2 unexpected output %q", out.String())
	}

	// Test 3 - bad sources.
	cfg.SourceString.ConnectionObject = "stock"
	if err := RunFetch(context.Background(), cfg); err == nil {
		t.Fatal("Test 3 expected an error for a source without a table")
	}
	cfg.SourceString.ConnectionObject = "db.items"
	if err := RunFetch(context.Background(), cfg); err == nil {
		t.Fatal("Test 3 expected an error fetching from a database connection")
	}
}

func TestFlatten(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, content string) string {
		fileName := filepath.Join(dir, name)
		if err := os.WriteFile(fileName, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		return fileName
	}
	var out bytes.Buffer

	// Test 1 - records keep document key order.
	cfg := &FlattenConfig{FileName: writeFile("stock.json", stockBody), RecordsKey: "items", Out: &out}
	if err := RunFlatten(cfg); err != nil {
		t.Fatal(err)
	}
	if out.String() != "sku,qty\na1,2\nb2,5\n" {
		t.Fatalf("Test 1 unexpected output %q", out.String())
	}

	// Test 2 - rows.
	out.Reset()
	cfg = &FlattenConfig{FileName: writeFile("order.json", `{"Order":{"id":7,"tags":["a","b"]}}`), Rows: true, Out: &out}
	if err := RunFlatten(cfg); err != nil {
		t.Fatal(err)
	}
	if out.String() != "key,value\norder_id,7\norder_tags_0,a\norder_tags_1,b\n" {
		t.Fatalf("Test 2 unexpected output %q", out.String())
	}

	// Test 3 - XML is detected by content.
	out.Reset()
	cfg = &FlattenConfig{FileName: writeFile("doc.txt", `<doc><id>1</id><name>x</name></doc>`), Out: &out}
	if err := RunFlatten(cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "id,name\n") {
		t.Fatalf("Test 3 unexpected output %q", out.String())
	}

	// Test 4 - a missing file.
	if err := RunFlatten(&FlattenConfig{FileName: filepath.Join(dir, "missing.json")}); err == nil {
		t.Fatal("Test 4 expected an error")
	}

	// Test 5 - sparse records keep their values in their own rows.
	out.Reset()
	cfg = &FlattenConfig{FileName: writeFile("sparse.json", `[{"a":1},{"a":3,"b":"x"}]`), Out: &out}
	if err := RunFlatten(cfg); err != nil {
		t.Fatal(err)
	}
	if out.String() != "a,b\n1,\n3,x\n" {
		t.Fatalf("Test 5 unexpected output %q", out.String())
	}
}

func TestCreateIntegration(t *testing.T) {
	loader := mapLoader{
		"stock": stockDetails("https://example.com/api"),
		"lake":  {Type: constants.ConnectionTypeS3, LogicalName: "lake"},
	}
	newCfg := func() *CreateIntegrationConfig {
		return &CreateIntegrationConfig{
			Log:          log,
			Connections:  loader,
			Name:         "Stock Daily",
			SourceString: connection.ConnectionObject{ConnectionObject: "stock.items"},
			TargetString: connection.ConnectionObject{ConnectionObject: "lake.stock"},
			Frequency:    "Daily",
			ScheduleTime: "02:00:00",
			SparkConfig:  map[string]string{"spark.executor.memory": "4g"},
		}
	}

	// Test 1 - types come from the stored connections.
	d, err := BuildDefinition(newCfg())
	if err != nil {
		t.Fatal(err)
	}
	if d.SourceType != constants.ConnectionTypeAPI || d.TargetType != constants.ConnectionTypeS3 || !d.IsFrequency {
		t.Fatalf("Test 1 unexpected definition %+v", d)
	}
	if d.SparkConfig["spark.executor.memory"] != "4g" || d.SparkConfig["spark.driver.memory"] != "1g" {
		t.Fatalf("Test 1 unexpected spark config %v", d.SparkConfig)
	}

	// Test 2 - print as yaml.
	var out bytes.Buffer
	cfg := newCfg()
	cfg.Output = OutputFormatYAML
	cfg.Out = &out
	if _, err = RunCreateIntegration(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "integration_name: Stock Daily") {
		t.Fatalf("Test 2 unexpected output %q", out.String())
	}

	// Test 3 - submit to a directory.
	dir := t.TempDir()
	cfg = newCfg()
	cfg.Orchestrator = &pipeline.DirectoryOrchestrator{Log: log, Dir: dir}
	cfg.Out = &out
	loc, err := RunCreateIntegration(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if loc != filepath.Join(dir, "stockdaily.json") {
		t.Fatalf("Test 3 unexpected location %q", loc)
	}

	// Test 4 - invalid definitions and unknown connections fail.
	cfg = newCfg()
	cfg.Frequency = ""
	if _, err = BuildDefinition(cfg); err == nil {
		t.Fatal("Test 4 expected an error without a frequency or dates")
	}
	cfg = newCfg()
	cfg.TargetString.ConnectionObject = "nope.x"
	if _, err = BuildDefinition(cfg); err == nil {
		t.Fatal("Test 4 expected an error for an unknown connection")
	}
	cfg = newCfg()
	if _, err = RunCreateIntegration(context.Background(), cfg); err == nil {
		t.Fatal("Test 4 expected an error without an output or orchestrator")
	}
}

func TestTaskActions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	q := mocks.NewMockQueue(ctrl)
	ctx := context.Background()
	var out bytes.Buffer

	// Test 1 - submit sends a run config payload.
	q.EXPECT().Submit(gomock.Any(), constants.TaskNameRunPipeline, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, payload interface{}) (string, error) {
			rc, ok := payload.(pipeline.RunConfig)
			if !ok || rc.SourceConnection != "stock" || rc.SourceTable != "items" || rc.Target.Connection != "stdout" {
				t.Fatalf("Test 1 unexpected payload %+v", payload)
			}
			return "task1", nil
		})
	id, err := RunTaskSubmit(ctx, &TaskSubmitConfig{
		Run: RunConfig{
			Log:          log,
			SourceString: connection.ConnectionObject{ConnectionObject: "stock.items"},
			Run:          pipeline.RunConfig{Target: pipeline.Target{Connection: "stdout"}},
		},
		Queue: q,
		Out:   &out,
	})
	if err != nil || id != "task1" || out.String() != "Task task1 submitted\n" {
		t.Fatalf("Test 1 unexpected result %q, %q, %v", id, out.String(), err)
	}

	// Test 2 - status prints the result.
	out.Reset()
	q.EXPECT().Status(gomock.Any(), "task1").Return(tasks.Result{ID: "task1", Name: constants.TaskNameRunPipeline, Status: tasks.StatusSuccess}, nil)
	r, err := RunTaskStatus(ctx, q, "task1", &out)
	if err != nil || r.Status != tasks.StatusSuccess || !strings.Contains(out.String(), `"SUCCESS"`) {
		t.Fatalf("Test 2 unexpected result %+v, %q, %v", r, out.String(), err)
	}

	// Test 3 - unknown tasks.
	q.EXPECT().Status(gomock.Any(), "missing").Return(tasks.Result{}, tasks.ErrTaskNotFound)
	if _, err = RunTaskStatus(ctx, q, "missing", &out); !errors.Is(err, tasks.ErrTaskNotFound) {
		t.Fatalf("Test 3 expected ErrTaskNotFound, got %v", err)
	}
}

func TestRunWorker(t *testing.T) {
	srv := stockAPI(t, nil)
	q := tasks.NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id, err := tasks.SubmitRun(ctx, q, pipeline.RunConfig{
		SourceConnection: "stock",
		SourceTable:      "items",
		RecordsKey:       "items",
		Target:           pipeline.Target{Connection: "csv", Directory: t.TempDir()},
	})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		done <- RunWorker(ctx, &WorkerConfig{
			Log:         log,
			Queue:       q,
			Connections: mapLoader{"stock": stockDetails(srv.URL)},
			Client:      srv.Client(),
			Concurrency: 1,
			PollTimeout: 50 * time.Millisecond,
		})
	}()

	// Test 1 - the worker runs the submitted pipeline.
	deadline := time.Now().Add(5 * time.Second)
	var r tasks.Result
	for time.Now().Before(deadline) {
		if r, _ = q.Status(ctx, id); r.Status.IsFinished() {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if r.Status != tasks.StatusSuccess {
		t.Fatalf("Test 1 unexpected task result %+v", r)
	}
	cancel()
	if err = <-done; err != nil {
		t.Fatal(err)
	}
}

func TestAuthorize(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "abc" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at1","refresh_token":"rt1","token_type":"Bearer"}`))
	}))
	defer tokenSrv.Close()
	d := stockDetails("https://example.com/api")
	d.Data[connection.KeyAuthType] = constants.AuthTypeOAuth2
	d.Data[connection.KeyClientID] = "client"
	d.Data[connection.KeyClientSecret] = "secret"
	d.Data[connection.KeyAuthorizeURL] = "https://example.com/authorize"
	d.Data[connection.KeyTokenURL] = tokenSrv.URL
	d.Data[connection.KeyRedirectURL] = "https://example.com/callback"
	store := auth.NewMemoryTokenStore()
	var out bytes.Buffer
	cfg := &AuthorizeConfig{Log: log, Connections: mapLoader{"stock": d, "plain": stockDetails("https://x")}, Tokens: store, ConnectionName: "stock", Out: &out}

	// Test 1 - without a code the consent url is printed.
	if err := RunAuthorize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "https://example.com/authorize?") || !strings.Contains(out.String(), "client_id=client") {
		t.Fatalf("Test 1 unexpected output %q", out.String())
	}

	// Test 2 - a code is exchanged and the token saved.
	cfg.Code = "abc"
	if err := RunAuthorize(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	tok, err := store.Get(context.Background(), "stock")
	if err != nil || tok.AccessToken != "at1" || tok.RefreshToken != "rt1" {
		t.Fatalf("Test 2 unexpected token %+v, %v", tok, err)
	}

	// Test 3 - bad codes and non-oauth2 connections fail.
	cfg.Code = "nope"
	if err = RunAuthorize(context.Background(), cfg); err == nil {
		t.Fatal("Test 3 expected an error for a bad code")
	}
	cfg.ConnectionName = "plain"
	if err = RunAuthorize(context.Background(), cfg); err == nil {
		t.Fatal("Test 3 expected an error for a connection without oauth2")
	}
}
