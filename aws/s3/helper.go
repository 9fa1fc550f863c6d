package s3

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/relloyd/openetl/connection"
	"github.com/relloyd/openetl/constants"
)

// Bucket identifies an S3 location.
type Bucket struct {
	Name   string `errorTxt:"bucket name" mandatory:"yes"`
	Prefix string `errorTxt:"bucket prefix"`
	Region string `errorTxt:"bucket region" mandatory:"yes"`
}

// URL returns s3://<name>/<prefix>.
func (b Bucket) URL() string {
	if b.Prefix == "" {
		return "s3://" + b.Name
	}
	return "s3://" + b.Name + "/" + strings.Trim(b.Prefix, "/")
}

// ToDetails converts b into connection details called logicalName.
func (b Bucket) ToDetails(logicalName string) connection.Details {
	return connection.Details{
		Type:        constants.ConnectionTypeS3,
		LogicalName: logicalName,
		Data: map[string]string{
			connection.KeyBucket: b.Name,
			connection.KeyPrefix: b.Prefix,
			connection.KeyRegion: b.Region,
		},
	}
}

// BucketFromDetails reads a Bucket from an s3 connection.
func BucketFromDetails(d connection.Details) (Bucket, error) {
	if d.Type != constants.ConnectionTypeS3 {
		return Bucket{}, fmt.Errorf("connection %q is of type %q, not %q", d.LogicalName, d.Type, constants.ConnectionTypeS3)
	}
	b := Bucket{
		Name:   d.Data[connection.KeyBucket],
		Prefix: d.Data[connection.KeyPrefix],
		Region: d.Data[connection.KeyRegion],
	}
	if b.Name == "" || b.Region == "" {
		return b, fmt.Errorf("connection %q requires a bucket name and region", d.LogicalName)
	}
	return b, nil
}

// ParseDSN expects bucketPrefix to be of the form [s3://]<bucket>/<prefix>
// It returns a Bucket populated with the components of bucketPrefix and the supplied region.
func ParseDSN(bucketPrefix string, region string) (retval Bucket, err error) {
	expectedScheme := "s3"
	if !strings.Contains(bucketPrefix, "://") {
		bucketPrefix = expectedScheme + "://" + bucketPrefix
	}
	s3url, err := url.Parse(bucketPrefix)
	if err != nil {
		return retval, fmt.Errorf("error parsing S3 URL: %v", err)
	}
	if s3url.Scheme != expectedScheme {
		return retval, fmt.Errorf("expected S3 URL scheme %q but got %q", expectedScheme, s3url.Scheme)
	}
	if region == "" {
		return retval, fmt.Errorf("value expected for bucket region")
	}
	retval.Name = s3url.Host
	if retval.Name == "" {
		return retval, fmt.Errorf("DSN failed to parse bucket name")
	}
	retval.Prefix = strings.Trim(s3url.Path, "/")
	retval.Region = region
	return
}
