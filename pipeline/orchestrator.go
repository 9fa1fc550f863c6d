package pipeline

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/aws/s3"
	"github.com/relloyd/openetl/logger"
)

const archivePrefix = "archive"

// Orchestrator hands a validated definition to an external scheduler.
// Submit returns the location the definition was written to.
type Orchestrator interface {
	Submit(ctx context.Context, d *Definition) (string, error)
}

// DirectoryOrchestrator writes definitions as <integration>.json files in Dir, where a
// scheduler picks them up.
type DirectoryOrchestrator struct {
	Log logger.Logger
	Dir string
}

func (o *DirectoryOrchestrator) Submit(_ context.Context, d *Definition) (string, error) {
	b, err := validatedJSON(d)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(o.Dir, 0700); err != nil {
		return "", errors.Wrapf(err, "unable to create orchestrator directory %q", o.Dir)
	}
	fileName := filepath.Join(o.Dir, d.FileName())
	if err = os.WriteFile(fileName, b, 0600); err != nil {
		return "", errors.Wrapf(err, "unable to write integration %q", d.IntegrationName)
	}
	o.Log.Info("Integration ", d.IntegrationName, " written to ", fileName)
	return fileName, nil
}

// S3Orchestrator puts definitions into a bucket.
// A definition already stored under the same name is first moved to archive/.
type S3Orchestrator struct {
	Log    logger.Logger
	Bucket s3.Bucket
	Client s3.Client
}

func (o *S3Orchestrator) Submit(ctx context.Context, d *Definition) (string, error) {
	b, err := validatedJSON(d)
	if err != nil {
		return "", err
	}
	if err = o.archive(ctx, d); err != nil {
		return "", err
	}
	if err = o.Client.Put(ctx, d.FileName(), b); err != nil {
		return "", errors.Wrapf(err, "unable to put integration %q", d.IntegrationName)
	}
	loc := s3.Bucket{Name: o.Bucket.Name, Prefix: filepath.ToSlash(filepath.Join(o.Bucket.Prefix, d.FileName()))}.URL()
	o.Log.Info("Integration ", d.IntegrationName, " written to ", loc)
	return loc, nil
}

func (o *S3Orchestrator) archive(ctx context.Context, d *Definition) error {
	_, err := o.Client.Get(ctx, d.FileName())
	if errors.Is(err, s3.ErrKeyNotFound) {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "unable to check for existing integration %q", d.IntegrationName)
	}
	dst := path.Join(archivePrefix, strings.TrimSuffix(d.FileName(), ".json")+"-"+time.Now().UTC().Format("20060102T150405Z")+".json")
	if err = o.Client.Move(ctx, d.FileName(), dst); err != nil {
		return errors.Wrapf(err, "unable to archive integration %q", d.IntegrationName)
	}
	o.Log.Info("Previous definition of integration ", d.IntegrationName, " archived to ", dst)
	return nil
}

func validatedJSON(d *Definition) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d.Marshal(FormatJSON)
}
