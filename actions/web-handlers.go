package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/pipeline"
	"github.com/relloyd/openetl/tasks"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		return nil, fmt.Errorf("unhandled WebServerResponse value %v in MarshalJSON() conversion", uint32(w))
	}
	return json.Marshal(retval)
}

func (w *WebServerResponse) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "ok":
		*w = Okay
	case "error":
		*w = Error
	default:
		return fmt.Errorf("unknown response status %q", s)
	}
	return nil
}

type ResponseSimple struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message,omitempty"`
}

type ConnectionListItem struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ResponseConnectionList struct {
	Status      WebServerResponse    `json:"status"`
	Message     string               `json:"message,omitempty"`
	Connections []ConnectionListItem `json:"connections"`
}

type ResponseConnectionTest struct {
	Status  WebServerResponse    `json:"status"`
	Message string               `json:"message,omitempty"`
	Result  ConnectionTestResult `json:"result"`
}

type ResponsePreview struct {
	Status     WebServerResponse `json:"status"`
	Message    string            `json:"message,omitempty"`
	Connection string            `json:"connection"`
	Table      string            `json:"table"`
	Columns    []string          `json:"columns"`
	Rows       [][]string        `json:"rows"`
	TotalRows  int               `json:"totalRows"`
	Cached     bool              `json:"cached"`
}

type ResponseTask struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message,omitempty"`
	TaskId  string            `json:"taskId"`
	Task    *tasks.Result     `json:"task,omitempty"`
}

type ResponseIntegration struct {
	Status   WebServerResponse `json:"status"`
	Message  string            `json:"message,omitempty"`
	Location string            `json:"location,omitempty"`
}

type ResponsePipeList struct {
	Status   WebServerResponse `json:"status"`
	PipeList []PipeListItem    `json:"pipes"`
}

type PipeListItem struct {
	PipeId          string          `json:"pipeId"`
	PipeDescription string          `json:"pipeDescription"`
	PipeStatus      pipeline.Status `json:"pipeStatus"`
}

type ResponsePipeStats struct {
	Status       WebServerResponse `json:"status"`
	Message      string            `json:"message"`
	StatsSummary interface{}       `json:"pipeStats"`
	Steps        map[string]string `json:"steps,omitempty"`
}

type ResponsePipeStatus struct {
	Status     WebServerResponse  `json:"status"`
	Message    string             `json:"message"`
	PipeStatus pipeline.RunStatus `json:"pipeStatus"`
	Result     pipeline.RunResult `json:"result"`
}

type ResponsePipe struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message"`
	PipeId  string            `json:"pipeId"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{Status: Okay})
	}
}

func GetHandlerStopServer(log logger.Logger, chanStop chan string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case chanStop <- "stop":
			log.Info("Stop signal sent")
		default: // already stopping.
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{Status: Okay, Message: "stopping"})
	}
}

func GetHandlerConnectionList(log logger.Logger, c ConnectionGetterSetter) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := ListConnections(c)
		if err != nil {
			logAndRespond(log, http.StatusInternalServerError, w, ResponseConnectionList{Status: Error, Message: err.Error()}, err)
			return
		}
		items := make([]ConnectionListItem, 0, len(all))
		for _, d := range all {
			items = append(items, ConnectionListItem{Name: d.LogicalName, Type: d.Type})
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseConnectionList{Status: Okay, Connections: items})
	}
}

func GetHandlerConnectionTest(log logger.Logger, web *WebServerConfig) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		res, err := RunConnectionTest(r.Context(), &ConnectionTestConfig{
			Log:            log,
			Connections:    web.Connections,
			Tokens:         web.Tokens,
			Client:         web.Client,
			ConnectionName: name,
			Table:          r.URL.Query().Get("table"),
			Timeout:        web.FetchTimeout,
		})
		if err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponseConnectionTest{Status: Error, Message: err.Error()}, err)
			return
		}
		status := Okay
		if !res.OK {
			status = Error
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseConnectionTest{Status: status, Message: res.Message, Result: res})
	}
}

func GetHandlerTablePreview(log logger.Logger, web *WebServerConfig, previews *previewCache) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		name, tableName := vars["name"], vars["table"]
		p, cached := previews.get(name, tableName)
		if !cached {
			tab, err := FetchTable(r.Context(), &FetchConfig{
				Log:          log,
				Connections:  web.Connections,
				Tokens:       web.Tokens,
				Client:       web.Client,
				SourceString: connection.ConnectionObject{ConnectionObject: name + "." + tableName},
				RecordsKey:   r.URL.Query().Get("recordsKey"),
				MaxPages:     web.PreviewMaxPages,
				Retry:        web.Retry,
				Timeout:      web.FetchTimeout,
			})
			if err != nil {
				logAndRespond(log, http.StatusBadRequest, w,
					ResponsePreview{Status: Error, Message: err.Error(), Connection: name, Table: tableName}, err)
				return
			}
			p = previews.put(name, tableName, tab)
		}
		p.Cached = cached
		w.WriteHeader(http.StatusOK)
		respond(log, w, p)
	}
}

func GetHandlerTaskSubmit(log logger.Logger, q tasks.Queue) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if q == nil {
			logAndRespond(log, http.StatusServiceUnavailable, w, ResponseTask{Status: Error, Message: "no task queue configured"}, nil)
			return
		}
		rc := pipeline.RunConfig{}
		if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponseTask{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)}, err)
			return
		}
		if err := rc.ValidatePayload(); err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponseTask{Status: Error, Message: err.Error()}, err)
			return
		}
		id, err := tasks.SubmitRun(r.Context(), q, rc)
		if err != nil {
			logAndRespond(log, http.StatusInternalServerError, w, ResponseTask{Status: Error, Message: err.Error()}, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		respond(log, w, ResponseTask{Status: Okay, Message: "task submitted", TaskId: id})
	}
}

func GetHandlerTaskStatus(log logger.Logger, q tasks.Queue) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["taskId"]
		if q == nil {
			logAndRespond(log, http.StatusServiceUnavailable, w, ResponseTask{Status: Error, Message: "no task queue configured", TaskId: id}, nil)
			return
		}
		res, err := q.Status(r.Context(), id)
		if errors.Is(err, tasks.ErrTaskNotFound) {
			log.Info("HTTP request for status of task ", id, " that doesn't exist.")
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponseTask{Status: Error, Message: fmt.Sprintf("task %v does not exist", id), TaskId: id})
			return
		} else if err != nil {
			logAndRespond(log, http.StatusInternalServerError, w, ResponseTask{Status: Error, Message: err.Error(), TaskId: id}, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseTask{Status: Okay, TaskId: id, Task: &res})
	}
}

func GetHandlerIntegrationSubmit(log logger.Logger, o pipeline.Orchestrator) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if o == nil {
			logAndRespond(log, http.StatusServiceUnavailable, w, ResponseIntegration{Status: Error, Message: "no orchestrator configured"}, nil)
			return
		}
		d := &pipeline.Definition{}
		if err := json.NewDecoder(r.Body).Decode(d); err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponseIntegration{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)}, err)
			return
		}
		if err := d.Validate(); err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponseIntegration{Status: Error, Message: err.Error()}, err)
			return
		}
		loc, err := o.Submit(r.Context(), d)
		if err != nil {
			logAndRespond(log, http.StatusInternalServerError, w, ResponseIntegration{Status: Error, Message: err.Error()}, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		respond(log, w, ResponseIntegration{Status: Okay, Message: "integration submitted", Location: loc})
	}
}

// GetHandlerPipeLaunch runs the posted RunConfig in this process.
func GetHandlerPipeLaunch(ctx context.Context, log logger.Logger, web *WebServerConfig, runs *runTracker) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := pipeline.RunConfig{}
		if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponsePipe{Status: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)}, err)
			return
		}
		rc.Env = pipeline.Env{
			Connections: web.Connections,
			Tokens:      web.Tokens,
			Client:      web.Client,
			Batches:     web.Batches,
		}
		id, err := runs.launch(ctx, log, rc, web.StatsDumpFrequencySeconds)
		if err != nil {
			logAndRespond(log, http.StatusBadRequest, w, ResponsePipe{Status: Error, Message: fmt.Sprintf("invalid run supplied: %v", err)}, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		respond(log, w, ResponsePipe{Status: Okay, Message: "pipe launched", PipeId: id})
	}
}

func GetHandlerPipeStop(log logger.Logger, runs *runTracker) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["pipeId"]
		ri, ok := runs.info.Load(id)
		switch {
		case !ok:
			log.Info("HTTP request to stop pipe ", id, " that doesn't exist.")
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponsePipe{Status: Error, Message: "pipe does not exist", PipeId: id})
		case !runs.info.Stop(id):
			log.Info("HTTP request to stop pipe ", id, " that has already finished.")
			w.WriteHeader(http.StatusOK)
			respond(log, w, ResponsePipe{Status: Error, Message: "pipe already ended: " + ri.Status.Status.String(), PipeId: id})
		default:
			log.Info("Stopping pipe ", id)
			w.WriteHeader(http.StatusOK)
			respond(log, w, ResponsePipe{Status: Okay, Message: "shutting down", PipeId: id})
		}
	}
}

func GetHandlerPipeList(log logger.Logger, runs *runTracker) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		ids := runs.info.IDs()
		sort.Strings(ids)
		pipes := make([]PipeListItem, 0, len(ids))
		for _, id := range ids {
			if ri, ok := runs.info.Load(id); ok {
				pipes = append(pipes, PipeListItem{PipeId: id, PipeDescription: ri.Config.Name(), PipeStatus: ri.Status.Status})
			}
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponsePipeList{Status: Okay, PipeList: pipes})
	}
}

func GetHandlerPipeStats(log logger.Logger, runs *runTracker) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["pipeId"]
		ri, ok := runs.info.Load(id)
		if !ok {
			log.Info("HTTP request to fetch stats for pipe ", id, " that doesn't exist.")
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponsePipeStats{Status: Error, Message: fmt.Sprintf("pipe %v does not exist", id)})
			return
		}
		resp := ResponsePipeStats{Status: Okay}
		if ri.Stats != nil {
			resp.StatsSummary = ri.Stats.GetStats()
		}
		if ri.Steps != nil {
			resp.Steps = ri.Steps()
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, resp)
	}
}

func GetHandlerPipeStatus(log logger.Logger, runs *runTracker) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["pipeId"]
		ri, ok := runs.info.Load(id)
		if !ok {
			log.Info("HTTP request status of pipe ", id, " that doesn't exist.")
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponsePipeStatus{Status: Error, Message: fmt.Sprintf("pipe %v does not exist", id)})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponsePipeStatus{Status: Okay, PipeStatus: ri.Status, Result: ri.Result})
	}
}

// logAndRespond logs err when set, writes status and then r to w.
func logAndRespond(log logger.Logger, status int, w http.ResponseWriter, r interface{}, err error) {
	if err != nil {
		log.Error(err)
	}
	w.WriteHeader(status)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Panic(err)
	}
	_, err = fmt.Fprint(w, string(j))
	if err != nil {
		log.Error(err)
	}
}
