package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/auth"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/components"
	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/fetch"
	"github.com/relloyd/openetl/helper"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/rdbms"
	"github.com/relloyd/openetl/retry"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
	"github.com/relloyd/openetl/table"
)

// ConnectionLoader loads stored connection details by name.
type ConnectionLoader interface {
	LoadConnection(name string) (connection.Details, error)
}

// Target says where a run writes its rows.
// Connection is "stdout", "csv" or the name of a stored s3 or database connection.
type Target struct {
	Connection  string `json:"connection"`
	Schema      string `json:"schema,omitempty"`
	Table       string `json:"table,omitempty"`
	Directory   string `json:"directory,omitempty"` // csv output directory; empty for a temp directory.
	Format      string `json:"format,omitempty"`    // stdout format, json or csv.
	MaxFileRows int    `json:"maxFileRows,omitempty"`
	UseGzip     bool   `json:"useGzip,omitempty"`
	CreateTable bool   `json:"createTable,omitempty"`
}

// RunConfig is the payload of a run. Env is not serialised; the process executing the
// run supplies it.
type RunConfig struct {
	IntegrationName   string `json:"integrationName,omitempty"`
	SourceConnection  string `json:"sourceConnection" errorTxt:"source connection" mandatory:"yes"`
	SourceTable       string `json:"sourceTable" errorTxt:"source table" mandatory:"yes"`
	RecordsKey        string `json:"recordsKey,omitempty"`
	Target            Target `json:"target"`
	FilterType        string `json:"filterType,omitempty"`
	FilterMetadata    string `json:"filterMetadata,omitempty"`
	MaxPages          int    `json:"maxPages,omitempty"`
	RetryTries        int    `json:"retryTries,omitempty"`
	RetryDelaySeconds int    `json:"retryDelaySeconds,omitempty"`
	TimeoutSeconds    int    `json:"timeoutSeconds,omitempty"`
	Env               Env    `json:"-"`
}

// Env holds the resources a run needs.
type Env struct {
	Connections ConnectionLoader
	Tokens      auth.TokenStore   // required for oauth2 sources.
	Client      *http.Client      // defaults to http.DefaultClient.
	Stdout      io.Writer         // defaults to os.Stdout.
	Batches     *rdbms.BatchStore // optional batch bookkeeping.
	S3Client    s3.BasicClient    // optional override for s3 targets.
	Stats       *stats.RunStatsManager
	waiter      *groupWaiter
}

// RunResult summarises a completed run.
type RunResult struct {
	BatchID     string   `json:"batchId,omitempty"`
	RowsRead    int      `json:"rowsRead"`
	RowsWritten int      `json:"rowsWritten"`
	Files       []string `json:"files,omitempty"`
	Keys        []string `json:"keys,omitempty"`
}

// shutdownTimeout bounds the wait for each step to acknowledge a shutdown request.
var shutdownTimeout = 2 * time.Second

// Name returns the integration name, defaulting to <source>.<table>.
func (c *RunConfig) Name() string {
	if c.IntegrationName != "" {
		return c.IntegrationName
	}
	return c.SourceConnection + "." + c.SourceTable
}

// ValidatePayload checks the serialisable part of c, as sent to a task queue.
func (c *RunConfig) ValidatePayload() error {
	if err := helper.ValidateStructIsPopulated(c); err != nil {
		return err
	}
	if c.FilterType != "" && !components.IsFilterType(c.FilterType) {
		return fmt.Errorf("unknown filter type %q", c.FilterType)
	}
	if c.RetryTries < 0 || c.RetryDelaySeconds < 0 {
		return errors.New("retry tries and delay must not be negative")
	}
	return nil
}

// Validate checks c can be run in this process.
func (c *RunConfig) Validate() error {
	if err := c.ValidatePayload(); err != nil {
		return err
	}
	if c.Env.Connections == nil {
		return errors.New("no connection loader supplied")
	}
	return nil
}

func (c *RunConfig) tableRequest(log logger.Logger, src connection.Details) (fetch.TableRequest, error) {
	req, err := fetch.NewTableRequest(log, src, c.SourceTable, c.Env.Tokens)
	if err != nil {
		return req, err
	}
	tries := c.RetryTries
	if tries == 0 {
		tries = 1
	}
	req.Config.Client = c.Env.Client
	req.Config.MaxPages = c.MaxPages
	req.Retry = retry.Policy{Tries: tries, Delay: time.Duration(c.RetryDelaySeconds) * time.Second}
	req.Timeout = time.Duration(c.TimeoutSeconds) * time.Second
	req.RecordsKey = c.RecordsKey
	return req, nil
}

// Run fetches and normalises the source table, then streams its rows through an optional
// filter into the target. A batch is recorded when cfg.Env.Batches is set.
func Run(ctx context.Context, log logger.Logger, cfg RunConfig) (result RunResult, err error) {
	if err = cfg.Validate(); err != nil {
		return result, err
	}
	if cfg.Env.Client == nil {
		cfg.Env.Client = http.DefaultClient
	}
	if cfg.Env.Stdout == nil {
		cfg.Env.Stdout = os.Stdout
	}
	if cfg.Env.Stats == nil {
		cfg.Env.Stats = stats.NewRunStats(log, stats.SetStatsDumpFrequency(0))
	}
	if cfg.Env.waiter == nil {
		cfg.Env.waiter = newGroupWaiter()
	}
	src, err := cfg.Env.Connections.LoadConnection(cfg.SourceConnection)
	if err != nil {
		return result, err
	}
	req, err := cfg.tableRequest(log, src)
	if err != nil {
		return result, err
	}
	tgt, err := resolveTarget(cfg.Env.Connections, cfg.Target)
	if err != nil {
		return result, err
	}
	if cfg.Env.Batches != nil {
		b, err := cfg.Env.Batches.Create(ctx, cfg.Name(), "api_to_"+tgt.Type)
		if err != nil {
			return result, err
		}
		result.BatchID = b.BatchID
		defer func() {
			if ferr := cfg.Env.Batches.Finish(context.Background(), b.BatchID, int64(result.RowsWritten), err); ferr != nil {
				log.Error("unable to finish batch ", b.BatchID, ": ", ferr)
			}
		}()
	}
	log.Info("Fetching ", cfg.SourceConnection, ".", cfg.SourceTable)
	tab, err := fetch.FetchTable(ctx, req)
	if err != nil {
		return result, err
	}
	result.RowsRead = tab.NumRows()
	log.Info("Fetched ", result.RowsRead, " rows and ", len(tab.Columns), " columns")
	if result.RowsRead == 0 {
		return result, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c := newChain(log, cfg.Env.Stats, cfg.Env.waiter)
	cfg.Env.Stats.StartDumping()
	defer cfg.Env.Stats.StopDumping()
	err = c.build(ctx, &cfg, tgt, tab, &result)
	return result, err
}

// resolvedTarget is a Target with its stored connection loaded.
type resolvedTarget struct {
	Target
	Type    string
	Details connection.Details
}

func resolveTarget(loader ConnectionLoader, t Target) (resolvedTarget, error) {
	r := resolvedTarget{Target: t}
	switch t.Connection {
	case "", constants.ConnectionTypeStdout:
		r.Type = constants.ConnectionTypeStdout
		return r, nil
	case constants.ConnectionTypeCSV:
		r.Type = constants.ConnectionTypeCSV
		return r, nil
	}
	d, err := loader.LoadConnection(t.Connection)
	if err != nil {
		return r, err
	}
	if d.Type != constants.ConnectionTypeS3 && !d.IsDatabase() {
		return r, fmt.Errorf("connection %q of type %q cannot be used as a target", t.Connection, d.Type)
	}
	if d.IsDatabase() && t.Table == "" {
		return r, fmt.Errorf("a target table is required for database connection %q", t.Connection)
	}
	r.Type = d.Type
	r.Details = d
	return r, nil
}

// chain launches components and tracks their control channels.
type chain struct {
	log      logger.Logger
	stats    *stats.RunStatsManager
	waiter   *groupWaiter
	errChan  chan error
	panicFn  components.PanicHandlerFunc
	controls []chan components.ControlAction
}

func newChain(log logger.Logger, s *stats.RunStatsManager, w *groupWaiter) *chain {
	errChan := make(chan error, 1)
	return &chain{log: log, stats: s, waiter: w, errChan: errChan, panicFn: newPanicHandler(errChan)}
}

// launch starts step and returns its output channel. A panic during setup is returned as an error.
func (c *chain) launch(step components.Step, cfg interface{}) (chan stream.Record, error) {
	out, ctl := step(cfg)
	if out == nil {
		c.shutdown()
		return nil, <-c.errChan
	}
	c.controls = append(c.controls, ctl)
	return out, nil
}

// shutdown asks every step to stop and waits a bounded time for each to respond.
func (c *chain) shutdown() {
	responses := make([]chan error, 0, len(c.controls))
	for _, ctl := range c.controls {
		resp := make(chan error, 1)
		select {
		case ctl <- components.ControlAction{Action: components.Shutdown, ResponseChan: resp}:
			responses = append(responses, resp)
		default: // the step already has a request pending.
		}
	}
	timeout := time.After(shutdownTimeout)
	for _, resp := range responses {
		select {
		case <-resp:
		case <-timeout:
			c.log.Debug("timeout waiting for steps to shutdown")
			return
		}
	}
}

// drain reads out until it closes, a step panics or ctx is done.
func (c *chain) drain(ctx context.Context, out chan stream.Record, fn func(stream.Record)) error {
	for {
		select {
		case rec, ok := <-out:
			if !ok {
				c.waiter.Wait()
				return nil
			}
			fn(rec)
		case err := <-c.errChan:
			c.shutdown()
			return err
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		}
	}
}

func (c *chain) build(ctx context.Context, cfg *RunConfig, tgt resolvedTarget, tab *table.Table, result *RunResult) error {
	header := tab.Header()
	out, err := c.launch(components.NewAPITableInput, &components.APITableInputConfig{
		Log:            c.log,
		Name:           "api table input",
		Ctx:            ctx,
		Table:          tab,
		StepWatcher:    c.stats.AddStepWatcher("api table input"),
		WaitCounter:    c.waiter.newStepWaiter("api table input"),
		PanicHandlerFn: c.panicFn,
	})
	if err != nil {
		return err
	}
	if cfg.FilterType != "" {
		out, err = c.launch(components.NewFilterRows, &components.FilterRowsConfig{
			Log:            c.log,
			Name:           "filter rows",
			InputChan:      out,
			FilterType:     components.FilterType(cfg.FilterType),
			FilterMetadata: cfg.FilterMetadata,
			StepWatcher:    c.stats.AddStepWatcher("filter rows"),
			WaitCounter:    c.waiter.newStepWaiter("filter rows"),
			PanicHandlerFn: c.panicFn,
		})
		if err != nil {
			return err
		}
	}
	var writeStep string
	var collectFn func(stream.Record)
	switch {
	case tgt.Type == constants.ConnectionTypeStdout:
		writeStep = "stdout"
		out, err = c.launch(components.NewStdOutPassThrough, &components.StdOutPassThroughConfig{
			Log:            c.log,
			Name:           writeStep,
			InputChan:      out,
			Writer:         cfg.Env.Stdout,
			Format:         tgt.Format,
			OutputFields:   header,
			StepWatcher:    c.stats.AddStepWatcher(writeStep),
			WaitCounter:    c.waiter.newStepWaiter(writeStep),
			PanicHandlerFn: c.panicFn,
		})
		collectFn = func(stream.Record) {}
	case tgt.Type == constants.ConnectionTypeCSV:
		writeStep = "csv file writer"
		out, err = c.launchCsvWriter(out, writeStep, tgt, cfg.SourceTable, header)
		collectFn = func(rec stream.Record) {
			result.Files = append(result.Files, rec.GetDataAsStringPreserveTimeZone(c.log, components.Defaults.ChanField4CSVFileName))
		}
	case tgt.Type == constants.ConnectionTypeS3:
		var bucket s3.Bucket
		if bucket, err = s3.BucketFromDetails(tgt.Details); err != nil {
			return err
		}
		writeStep = "csv file writer"
		tgt.Directory = "" // stage files in a temp directory.
		if out, err = c.launchCsvWriter(out, writeStep, tgt, cfg.SourceTable, header); err != nil {
			return err
		}
		out, err = c.launch(components.NewCopyFilesToS3, &components.CopyFilesToS3Config{
			Log:               c.log,
			Name:              "copy files to s3",
			Ctx:               ctx,
			InputChan:         out,
			FileNameChanField: components.Defaults.ChanField4CSVFileName,
			Bucket:            bucket,
			Client:            cfg.Env.S3Client,
			RemoveInputFiles:  true,
			StepWatcher:       c.stats.AddStepWatcher("copy files to s3"),
			WaitCounter:       c.waiter.newStepWaiter("copy files to s3"),
			PanicHandlerFn:    c.panicFn,
		})
		collectFn = func(rec stream.Record) {
			result.Keys = append(result.Keys, rec.GetDataAsStringPreserveTimeZone(c.log, components.Defaults.ChanField4BucketKey))
		}
	default: // database
		db, err := rdbms.OpenConnection(ctx, c.log, tgt.Details)
		if err != nil {
			c.shutdown()
			return err
		}
		defer db.Close()
		var ddl string
		if tgt.CreateTable {
			if ddl, err = table.CreateTableDDL(db.GetType(), tgt.Schema, tgt.Table, tab); err != nil {
				c.shutdown()
				return err
			}
		}
		writeStep = "table output"
		out, err = c.launch(components.NewTableOutput, &components.TableOutputConfig{
			Log:            c.log,
			Name:           writeStep,
			Ctx:            ctx,
			InputChan:      out,
			Db:             db,
			OutputSchema:   tgt.Schema,
			OutputTable:    tgt.Table,
			Columns:        header,
			CreateTableDDL: ddl,
			StepWatcher:    c.stats.AddStepWatcher(writeStep),
			WaitCounter:    c.waiter.newStepWaiter(writeStep),
			PanicHandlerFn: c.panicFn,
		})
		if err != nil {
			return err
		}
		// The db must stay open until the chain completes.
		err = c.drain(ctx, out, func(stream.Record) {})
		result.RowsWritten = c.stats.TotalRows(writeStep)
		return err
	}
	if err != nil {
		return err
	}
	err = c.drain(ctx, out, collectFn)
	result.RowsWritten = c.stats.TotalRows(writeStep)
	return err
}

func (c *chain) launchCsvWriter(in chan stream.Record, name string, tgt resolvedTarget, sourceTable string, header []string) (chan stream.Record, error) {
	return c.launch(components.NewCsvFileWriter, &components.CsvFileWriterConfig{
		Log:                               c.log,
		Name:                              name,
		InputChan:                         in,
		OutputDir:                         tgt.Directory,
		FileNamePrefix:                    helper.SanitizeName(sourceTable),
		FileNameSuffixAppendCreationStamp: true,
		FileNameExtension:                 "csv",
		UseGzip:                           tgt.UseGzip,
		MaxFileRows:                       tgt.MaxFileRows,
		HeaderFields:                      header,
		StepWatcher:                       c.stats.AddStepWatcher(name),
		WaitCounter:                       c.waiter.newStepWaiter(name),
		PanicHandlerFn:                    c.panicFn,
	})
}
