package components

import (
	"fmt"
	"sync/atomic"
	"time"

	c "github.com/relloyd/openetl/constants"
	"github.com/relloyd/openetl/file"
	"github.com/relloyd/openetl/logger"
	"github.com/relloyd/openetl/stats"
	"github.com/relloyd/openetl/stream"
)

type CsvFileWriterConfig struct {
	Log                               logger.Logger
	Name                              string
	InputChan                         chan stream.Record // rows to write.
	OutputDir                         string             // empty for a new directory in OS temp space.
	FileNamePrefix                    string
	FileNameSuffixAppendCreationStamp bool
	FileNameSuffixDateFormat          string
	FileNameExtension                 string
	UseGzip                           bool
	MaxFileRows                       int
	MaxFileBytes                      int
	HeaderFields                      []string // the record keys, in CSV column order.
	OutputChanField4FilePath          string   // the field on outputChan that will contain the file name.
	StepWatcher                       *stats.StepWatcher
	WaitCounter                       ComponentWaiter
	PanicHandlerFn                    PanicHandlerFunc
}

// NewCsvFileWriter writes cfg.InputChan to rotating CSV files.
// outputChan carries one record per completed file, naming it in field cfg.OutputChanField4FilePath.
func NewCsvFileWriter(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*CsvFileWriterConfig)
	if cfg.PanicHandlerFn != nil {
		defer cfg.PanicHandlerFn()
	}
	if cfg.InputChan == nil {
		cfg.Log.Panic(cfg.Name, " error - missing input channel.")
	}
	if len(cfg.HeaderFields) == 0 {
		cfg.Log.Panic(cfg.Name, " error - missing header fields.")
	}
	if cfg.OutputChanField4FilePath == "" {
		cfg.OutputChanField4FilePath = Defaults.ChanField4CSVFileName
	}
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		cfg.Log.Info(cfg.Name, " is running")
		prefix := cfg.FileNamePrefix
		if cfg.FileNameSuffixAppendCreationStamp {
			if cfg.FileNameSuffixDateFormat == "" {
				cfg.FileNameSuffixDateFormat = c.TimeFormatYearSeconds
			}
			prefix = fmt.Sprintf("%v-%v", cfg.FileNamePrefix, time.Now().Format(cfg.FileNameSuffixDateFormat))
		}
		fo, err := file.NewCSVFileOutput(cfg.Log, file.CSVOptions{
			Directory:    cfg.OutputDir,
			Prefix:       prefix,
			Extension:    cfg.FileNameExtension,
			MaxFileRows:  cfg.MaxFileRows,
			MaxFileBytes: cfg.MaxFileBytes,
			UseGzip:      cfg.UseGzip,
		})
		if err != nil {
			cfg.Log.Panic(cfg.Name, " ", err)
		}
		defer func() { _ = fo.Close() }()
		fo.SetHeader(cfg.HeaderFields)
		rowCount := int64(0)
		if cfg.StepWatcher != nil {
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		sendFileName := func(fileName string) bool {
			row := stream.NewRecord()
			row.SetData(cfg.OutputChanField4FilePath, fileName)
			cfg.Log.Debug(cfg.Name, " producing filename as a row onto the output channel: ", fileName)
			return safeSend(row, outputChan, controlChan, sendNilControlResponse)
		}
		var curFileName string
		for {
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok {
					if err := fo.Close(); err != nil {
						cfg.Log.Panic(cfg.Name, " ", err)
					}
					if curFileName != "" { // if there is a final file to send downstream...
						if !sendFileName(curFileName) {
							cfg.Log.Info(cfg.Name, " shutdown")
							return
						}
					}
					close(outputChan)
					cfg.Log.Info(cfg.Name, " complete")
					return
				}
				newFile, err := fo.WriteRecord(rec.GetDataKeysAsSlice(cfg.Log, cfg.HeaderFields))
				if err != nil {
					cfg.Log.Panic(cfg.Name, " ", err)
				}
				atomic.AddInt64(&rowCount, 1)
				if newFile != "" { // if the previous file was closed...
					prev := curFileName
					curFileName = newFile
					if prev != "" && !sendFileName(prev) {
						cfg.Log.Info(cfg.Name, " shutdown")
						return
					}
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
