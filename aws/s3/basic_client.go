package s3

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// NewBasicClient creates a client for bucket using the default AWS credential chain.
func NewBasicClient(bucket Bucket) (BasicClient, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(bucket.Region))
	if err != nil {
		return nil, err
	}
	return NewBasicClientWithAPI(bucket, s3.New(sess)), nil
}

// NewBasicClientWithAPI creates a client that talks to api.
func NewBasicClientWithAPI(bucket Bucket, api s3iface.S3API) BasicClient {
	return &basicClient{bucket: bucket, api: api}
}

type basicClient struct {
	bucket Bucket
	api    s3iface.S3API
}

func (s *basicClient) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0, 1000)
	err := s.api.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket.Name),
		MaxKeys: aws.Int64(1000),
		Prefix:  aws.String(s.keyWithPrefix(prefix)),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, v := range page.Contents {
			keys = append(keys, s.keyWithoutPrefix(aws.StringValue(v.Key)))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *basicClient) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := s.api.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket.Name),
		Key:    aws.String(s.keyWithPrefix(key)),
	})
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok && awsErr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	defer res.Body.Close()
	return io.ReadAll(res.Body)
}

func (s *basicClient) Put(ctx context.Context, key string, data []byte) error {
	return s.BufferPut(ctx, key, bytes.NewReader(data))
}

func (s *basicClient) BufferPut(ctx context.Context, key string, buf io.ReadSeeker) error {
	_, err := s.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket.Name),
		Key:    aws.String(s.keyWithPrefix(key)),
		Body:   buf,
	})
	return err
}

func (s *basicClient) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket.Name),
		Key:    aws.String(s.keyWithPrefix(key)),
	})
	return err
}

// keyWithPrefix puts the bucket prefix and a single slash in front of key.
func (s *basicClient) keyWithPrefix(key string) string {
	if s.bucket.Prefix == "" {
		return key
	}
	return strings.TrimRight(s.bucket.Prefix, "/") + "/" + strings.TrimLeft(key, "/")
}

func (s *basicClient) keyWithoutPrefix(key string) string {
	if s.bucket.Prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimRight(s.bucket.Prefix, "/")+"/")
}
