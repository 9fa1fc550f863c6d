package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/relloyd/openetl/pipeline"
)

type PipeConfig struct {
	RunFile        string `errorTxt:"run file" mandatory:"yes"`
	WithWebService bool   `errorTxt:"with-server" mandatory:"no"`
	Run            RunConfig
}

// LoadRunFile reads a pipeline.RunConfig from a JSON or YAML file.
func LoadRunFile(fileName string) (pipeline.RunConfig, error) {
	rc := pipeline.RunConfig{}
	b, err := os.ReadFile(fileName)
	if err != nil {
		return rc, errors.Wrapf(err, "unable to read run file %q", fileName)
	}
	if err = yaml.Unmarshal(b, &rc); err != nil {
		return rc, errors.Wrapf(err, "unable to parse run file %q", fileName)
	}
	return rc, nil
}

// RunPipeFromFile runs the pipeline described in pipe.RunFile. With a web service the run is
// launched through the server's /launch context so its progress can be followed under /pipes.
func RunPipeFromFile(ctx context.Context, pipe *PipeConfig, web *WebServerConfig) error {
	if pipe == nil {
		return fmt.Errorf("nil pointer for pipe config supplied")
	}
	if pipe.RunFile == "" {
		return fmt.Errorf("supply a YAML or JSON run file name to execute your pipe")
	}
	rc, err := LoadRunFile(pipe.RunFile)
	if err != nil {
		return err
	}
	if !pipe.WithWebService {
		cfg := pipe.Run
		cfg.Run = rc
		cfg.SourceString.ConnectionObject = rc.SourceConnection + "." + rc.SourceTable
		_, err = RunPipeline(ctx, &cfg)
		return err
	}
	return launchPipeWithServer(rc, web)
}

// launchPipeWithServer starts the web server and POSTs rc to it.
// If the initial POST fails the server is stopped and an error returned.
func launchPipeWithServer(rc pipeline.RunConfig, web *WebServerConfig) error {
	if err := rc.ValidatePayload(); err != nil {
		return err
	}
	b, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	s := newWebServer(web)
	if err = s.start(); err != nil {
		return err
	}
	url := fmt.Sprintf("http://localhost:%v%v", web.Port, urlContext4Launch)
	web.Log.Debug("posting to url = ", url)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(b))
	if err != nil {
		_ = s.shutdown()
		return errors.Wrap(err, "unable to launch pipe")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		_ = s.shutdown()
		return fmt.Errorf("error launching pipe, received HTTP status code %v", resp.StatusCode)
	}
	web.Log.Info("Launched pipe ", rc.Name())
	return s.wait()
}
