package actions

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/rdbms"
	"github.com/relloyd/openetl/retry"
	"github.com/relloyd/openetl/table"
	"github.com/relloyd/openetl/tasks"
)

const (
	urlContext4Launch      = "/launch"
	defaultPreviewRows     = 20
	defaultPreviewTTL      = 5 * time.Minute
	defaultShutdownTimeout = 15 * time.Second
)

// ConnectionStore loads and lists stored connections.
type ConnectionStore interface {
	ConnectionLoader
	ConnectionGetterSetter
}

type WebServerConfig struct {
	Log                       logger.Logger   `errorTxt:"logger" mandatory:"yes"`
	Scheme                    string          `errorTxt:"scheme" mandatory:"no"`
	Addr                      string          `errorTxt:"address" mandatory:"no"`
	Port                      int             `errorTxt:"port" mandatory:"yes"`
	Connections               ConnectionStore `errorTxt:"connections" mandatory:"yes"`
	Tokens                    auth.TokenStore
	Client                    *http.Client
	Batches                   *rdbms.BatchStore
	Queue                     tasks.Queue           // optional; task routes answer 503 without it.
	Orchestrator              pipeline.Orchestrator // optional; integration routes answer 503 without it.
	Retry                     retry.Policy
	FetchTimeout              time.Duration
	PreviewRows               int
	PreviewMaxPages           int
	PreviewTTL                time.Duration
	StatsDumpFrequencySeconds int
	ShutdownTimeout           time.Duration
}

// RunWebServer serves the HTTP API until POST /stop or an interrupt.
func RunWebServer(web *WebServerConfig) error {
	if web == nil {
		return errors.New("nil pointer to web server config supplied")
	}
	if err := helper.ValidateStructIsPopulated(web); err != nil {
		return err
	}
	s := newWebServer(web)
	if err := s.start(); err != nil {
		return err
	}
	return s.wait()
}

type webServer struct {
	web      *WebServerConfig
	srv      *http.Server
	chanStop chan string
	runs     *runTracker
	previews *previewCache
	ctx      context.Context
	cancel   context.CancelFunc
}

func newWebServer(web *WebServerConfig) *webServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &webServer{
		web:      web,
		chanStop: make(chan string, 1),
		runs:     newRunTracker(),
		previews: newPreviewCache(web.PreviewTTL, web.PreviewRows),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.srv = &http.Server{ // Good practice to set timeouts to avoid Slowloris attacks.
		Addr:         fmt.Sprintf("%v:%v", web.Addr, web.Port),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      s.router(),
	}
	return s
}

func (s *webServer) router() *mux.Router {
	log := s.web.Log
	r := mux.NewRouter()
	r.Use(jsonContentType)
	r.HandleFunc("/stop", GetHandlerStopServer(log, s.chanStop)).Methods(http.MethodPost)
	r.HandleFunc("/health", GetHandlerHealth(log)).Methods(http.MethodGet)
	r.HandleFunc("/connections", GetHandlerConnectionList(log, s.web.Connections)).Methods(http.MethodGet)
	r.HandleFunc("/connections/{name}/tables/{table}/preview", GetHandlerTablePreview(log, s.web, s.previews)).Methods(http.MethodGet)
	r.HandleFunc("/connections/{name}/test", GetHandlerConnectionTest(log, s.web)).Methods(http.MethodPost)
	r.HandleFunc("/tasks", GetHandlerTaskSubmit(log, s.web.Queue)).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{taskId}", GetHandlerTaskStatus(log, s.web.Queue)).Methods(http.MethodGet)
	r.HandleFunc("/integrations", GetHandlerIntegrationSubmit(log, s.web.Orchestrator)).Methods(http.MethodPost)
	r.HandleFunc("/pipes", GetHandlerPipeList(log, s.runs)).Methods(http.MethodGet)
	r.HandleFunc("/pipes/{pipeId}/stats", GetHandlerPipeStats(log, s.runs)).Methods(http.MethodGet)
	r.HandleFunc("/pipes/{pipeId}/status", GetHandlerPipeStatus(log, s.runs)).Methods(http.MethodGet)
	r.HandleFunc("/pipes/{pipeId}/stop", GetHandlerPipeStop(log, s.runs)).Methods(http.MethodPost)
	r.Path(urlContext4Launch).Methods(http.MethodPost).Headers("Content-Type", "application/json").HandlerFunc(
		GetHandlerPipeLaunch(s.ctx, log, s.web, s.runs))
	return r
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// start binds the listen address and serves in the background.
func (s *webServer) start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %v", s.srv.Addr)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil {
			if err == http.ErrServerClosed {
				s.web.Log.Info(err)
			} else {
				s.web.Log.Error(err)
				select {
				case s.chanStop <- err.Error():
				default:
				}
			}
		}
	}()
	scheme := s.web.Scheme
	if scheme == "" {
		scheme = "http"
	}
	s.web.Log.Info(fmt.Sprintf("Listening on %v://%v", strings.ToLower(scheme), ln.Addr()))
	return nil
}

// wait blocks until a stop request or SIGINT/SIGTERM, stops running pipes and shuts the server down.
func (s *webServer) wait() error {
	chanOS := make(chan os.Signal, 1)
	signal.Notify(chanOS, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(chanOS)
	select {
	case <-s.chanStop:
	case <-chanOS:
	}
	return s.shutdown()
}

func (s *webServer) shutdown() error {
	s.web.Log.Info("Shutting down web server...")
	timeout := s.web.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.cancel() // stops all pipes launched by this server.
	if !s.runs.waitAll(ctx) {
		s.web.Log.Warn("timed out waiting for pipes to stop")
	}
	return s.srv.Shutdown(ctx)
}

// runTracker records runs launched by the server and waits for them on shutdown.
type runTracker struct {
	info *pipeline.SafeMapRunInfo
	wg   sync.WaitGroup
}

func newRunTracker() *runTracker {
	return &runTracker{info: pipeline.NewSafeMapRunInfo()}
}

func (t *runTracker) launch(ctx context.Context, log logger.Logger, rc pipeline.RunConfig, statsDumpFrequencySeconds int) (string, error) {
	id, wait, err := t.info.LaunchRun(ctx, log, rc, statsDumpFrequencySeconds)
	if err != nil {
		return "", err
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		wait()
	}()
	return id, nil
}

// waitAll returns false if ctx expires before all runs finish.
func (t *runTracker) waitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// previewCache holds the first rows of fetched tables keyed by <connection>.<table>.
type previewCache struct {
	c    *cache.Cache
	rows int
}

func newPreviewCache(ttl time.Duration, rows int) *previewCache {
	if ttl <= 0 {
		ttl = defaultPreviewTTL
	}
	if rows <= 0 {
		rows = defaultPreviewRows
	}
	return &previewCache{c: cache.New(ttl, 2*ttl), rows: rows}
}

func (p *previewCache) get(connectionName, tableName string) (ResponsePreview, bool) {
	v, ok := p.c.Get(connectionName + "." + tableName)
	if !ok {
		return ResponsePreview{}, false
	}
	return v.(ResponsePreview), true
}

func (p *previewCache) put(connectionName, tableName string, tab *table.Table) ResponsePreview {
	rows := tab.StringRows()
	if len(rows) > p.rows {
		rows = rows[:p.rows]
	}
	r := ResponsePreview{
		Status:     Okay,
		Connection: connectionName,
		Table:      tableName,
		Columns:    tab.Header(),
		Rows:       rows,
		TotalRows:  tab.NumRows(),
	}
	p.c.SetDefault(connectionName+"."+tableName, r)
	return r
}
