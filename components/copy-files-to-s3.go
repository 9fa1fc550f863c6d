package components

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/relloyd/openetl/aws/s3"
	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
)

type CopyFilesToS3Config struct {
	Log               logger.Logger
	Name              string
	Ctx               context.Context
	InputChan         chan stream.Record // rows containing the full path of files to copy to S3.
	FileNameChanField string             // the field in InputChan that contains the file path.
	Bucket            s3.Bucket          // target bucket; used when Client is nil.
	Client            s3.BasicClient     // optional client, handy for tests.
	RemoveInputFiles  bool               // true to delete the input files after a successful copy.
	StepWatcher       *stats.StepWatcher
	WaitCounter       ComponentWaiter
	PanicHandlerFn    PanicHandlerFunc
}

// NewCopyFilesToS3 copies OS files named on the input channel to S3.
// Input rows are passed to outputChan with the object key added in field Defaults.ChanField4BucketKey.
func NewCopyFilesToS3(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*CopyFilesToS3Config)
	if cfg.PanicHandlerFn != nil {
		defer cfg.PanicHandlerFn()
	}
	if cfg.InputChan == nil {
		cfg.Log.Panic(cfg.Name, " error - missing input channel.")
	}
	if cfg.FileNameChanField == "" {
		cfg.Log.Panic(cfg.Name, " error - missing the field name used to find files on the input channel.")
	}
	if cfg.Client == nil {
		client, err := s3.NewBasicClient(cfg.Bucket)
		if err != nil {
			cfg.Log.Panic(cfg.Name, " error - unable to create S3 client: ", err)
		}
		cfg.Client = client
	}
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	cfg.Log.Debug(cfg.Name, ": RemoveInputFiles = ", cfg.RemoveInputFiles)
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		cfg.Log.Info(cfg.Name, " is running")
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		rowCount := int64(0)
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		action := "copying"
		if cfg.RemoveInputFiles {
			action = "moving"
		}
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					close(outputChan)
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				atomic.AddInt64(&rowCount, 1)
				fullPath := rec.GetDataAsStringPreserveTimeZone(cfg.Log, cfg.FileNameChanField)
				if fullPath == "" {
					cfg.Log.Debug(cfg.Name, " no file found in input channel - skipping.")
					continue
				}
				key := filepath.Base(fullPath)
				cfg.Log.Info(cfg.Name, " ", action, " file '", fullPath, "' to '", cfg.Bucket.URL(), "'")
				if err := putFile(cfg.Ctx, cfg.Client, key, fullPath); err != nil {
					cfg.Log.Panic(cfg.Name, " ", err)
				}
				if cfg.RemoveInputFiles {
					if err := os.Remove(fullPath); err != nil {
						cfg.Log.Panic(cfg.Name, " unable to remove OS file, ", fullPath)
					}
					cfg.Log.Debug(cfg.Name, " removed file '", fullPath, "'")
				}
				out := stream.NewRecord()
				rec.CopyTo(out)
				out.SetData(Defaults.ChanField4BucketKey, key)
				if recSentOK := safeSend(out, outputChan, controlChan, sendNilControlResponse); !recSentOK {
					cfg.Log.Info(cfg.Name, " shutdown")
					return
				}
			case controlAction := <-controlChan:
				controlAction.ResponseChan <- nil
				cfg.Log.Info(cfg.Name, " shutdown")
				return
			}
		}
	}()
	return
}

func putFile(ctx context.Context, client s3.BasicClient, key string, fullPath string) error {
	f, err := os.Open(fullPath) // os.File implements io.ReadSeeker.
	if err != nil {
		return err
	}
	defer f.Close()
	return client.BufferPut(ctx, key, f)
}
