// Package file writes rotating CSV files.
package file

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/logger"
)

var reGzipExtension = regexp.MustCompile(`^\.*(.*?)\.*(?i)(gzip|gz)?$`)

// CSVOptions controls file naming and rotation.
// MaxFileRows and MaxFileBytes of zero disable rotation on that measure.
type CSVOptions struct {
	Directory    string // empty means a new temp directory
	Prefix       string
	Extension    string
	MaxFileRows  int
	MaxFileBytes int
	UseGzip      bool
}

// CSVFileOutput writes records to a series of CSV files, starting a new file when
// a row or byte limit is reached. Every file starts with the header, if one is set.
type CSVFileOutput struct {
	log      logger.Logger
	opts     CSVOptions
	header   []string
	suffixID int
	rows     int
	total    int
	bytes    int
	rotate   bool

	osFile *os.File
	gz     *gzip.Writer
	buf    *bufio.Writer
	csv    *csv.Writer

	ListOfOutputFiles []string
}

// NewCSVFileOutput prepares output according to opts. No file is created until the first write.
func NewCSVFileOutput(log logger.Logger, opts CSVOptions) (*CSVFileOutput, error) {
	if opts.Directory == "" {
		dir, err := os.MkdirTemp("", "csv-output-")
		if err != nil {
			return nil, errors.Wrap(err, "unable to create temp directory for CSV files")
		}
		opts.Directory = dir
	}
	if opts.Extension == "" {
		opts.Extension = "csv"
	}
	opts.Extension = strings.TrimLeft(opts.Extension, ".")
	if opts.UseGzip {
		opts.Extension = reGzipExtension.ReplaceAllString(opts.Extension, "$1") + ".gz"
		opts.Extension = strings.TrimLeft(opts.Extension, ".")
	}
	log.Debug("CSVFileOutput directory=", opts.Directory, "; prefix=", opts.Prefix, "; extension=", opts.Extension,
		"; maxFileRows=", opts.MaxFileRows, "; maxFileBytes=", opts.MaxFileBytes, "; useGzip=", opts.UseGzip)
	return &CSVFileOutput{log: log, opts: opts, rotate: true}, nil
}

// Directory returns the output directory.
func (f *CSVFileOutput) Directory() string {
	return f.opts.Directory
}

// TotalRows returns the number of records written across all files.
func (f *CSVFileOutput) TotalRows() int {
	return f.total
}

// SetHeader sets the record written at the top of each new file.
func (f *CSVFileOutput) SetHeader(record []string) {
	f.header = record
}

// Write counts bytes written to the current file so rotation by size works.
func (f *CSVFileOutput) Write(p []byte) (int, error) {
	var w io.Writer = f.osFile
	if f.opts.UseGzip {
		w = f.buf
	}
	n, err := w.Write(p)
	f.bytes += n
	if f.opts.MaxFileBytes > 0 && f.bytes >= f.opts.MaxFileBytes {
		f.rotate = true
	}
	return n, err
}

// WriteRecord writes record and returns the name of the file if a new one was started.
func (f *CSVFileOutput) WriteRecord(record []string) (newFile string, err error) {
	if f.rotate {
		if err = f.closeFile(); err != nil {
			return "", err
		}
		if newFile, err = f.openFile(); err != nil {
			return "", err
		}
	}
	if err = f.csv.Write(record); err != nil {
		return newFile, errors.Wrap(err, "unable to write to CSV file")
	}
	if f.opts.MaxFileBytes > 0 {
		// Flush each line so the byte count is accurate.
		f.csv.Flush()
		if err = f.csv.Error(); err != nil {
			return newFile, err
		}
	}
	f.rows++
	f.total++
	if f.opts.MaxFileRows > 0 && f.rows >= f.opts.MaxFileRows {
		f.rotate = true
	}
	return newFile, nil
}

// Close flushes and closes the current file.
func (f *CSVFileOutput) Close() error {
	err := f.closeFile()
	f.rotate = true
	return err
}

func (f *CSVFileOutput) openFile() (string, error) {
	f.suffixID++
	name := filepath.Join(f.opts.Directory, fmt.Sprintf("%v_%06d.%v", f.opts.Prefix, f.suffixID, f.opts.Extension))
	f.log.Info("Creating new CSV file '", name, "'")
	var err error
	if f.osFile, err = os.Create(name); err != nil {
		return "", errors.Wrapf(err, "unable to create file %q", name)
	}
	if f.opts.UseGzip {
		f.gz = gzip.NewWriter(f.osFile)
		f.buf = bufio.NewWriter(f.gz)
	}
	f.csv = csv.NewWriter(f)
	f.rows, f.bytes, f.rotate = 0, 0, false
	f.ListOfOutputFiles = append(f.ListOfOutputFiles, name)
	if f.header != nil {
		if err = f.csv.Write(f.header); err != nil {
			return name, errors.Wrap(err, "unable to write CSV header")
		}
	}
	return name, nil
}

func (f *CSVFileOutput) closeFile() error {
	if f.osFile == nil {
		return nil
	}
	defer func() {
		f.osFile, f.gz, f.buf, f.csv = nil, nil, nil, nil
	}()
	f.csv.Flush()
	if err := f.csv.Error(); err != nil {
		return errors.Wrap(err, "unable to flush CSV writer")
	}
	if f.opts.UseGzip {
		if err := f.buf.Flush(); err != nil {
			return err
		}
		if err := f.gz.Close(); err != nil {
			return err
		}
	}
	if err := f.osFile.Close(); err != nil {
		return errors.Wrapf(err, "unable to close file %q", f.osFile.Name())
	}
	return nil
}
