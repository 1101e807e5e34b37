package store

import (
	"context"
	"io"
	"io/ioutil"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/sidkik/deploy-v1/pkg/errors"
	"github.com/sidkik/deploy-v1/pkg/retry"
)

// S3 implements Store against an S3 bucket. All operations are scoped to a
// single deployment prefix, and transient failures are retried with backoff.
type S3 struct {
	client  s3iface.S3API
	bucket  string
	prefix  string
	retrier retry.Retrier
}

// NewS3 creates a Store for the given bucket and deployment prefix.
func NewS3(client s3iface.S3API, bucket, prefix string, retrier retry.Retrier) *S3 {
	return &S3{
		client:  client,
		bucket:  bucket,
		prefix:  strings.TrimSuffix(prefix, "/"),
		retrier: retrier,
	}
}

// List returns every object under the deployment prefix. S3 returns listings
// in pages of at most 1000 keys, so we keep requesting continuation pages
// until the listing is complete.
func (s *S3) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + "/"),
	}

	for {
		var page *s3.ListObjectsV2Output
		err := s.retrier.Do(ctx, func() error {
			var err error
			page, err = s.client.ListObjectsV2WithContext(ctx, input)
			return err
		})
		if err != nil {
			return nil, errors.RemoteListError{
				Bucket: s.bucket, Prefix: s.prefix, Cause: err}
		}

		for _, obj := range page.Contents {
			objects = append(objects, Object{
				Key:          strings.TrimPrefix(aws.StringValue(obj.Key), s.prefix+"/"),
				ETag:         strings.Trim(aws.StringValue(obj.ETag), `"`),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}

		if !aws.BoolValue(page.IsTruncated) {
			return objects, nil
		}
		input.ContinuationToken = page.NextContinuationToken
	}
}

// Get returns the contents of the object at the given key.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.retrier.Do(ctx, func() error {
		resp, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.prefix + "/" + key),
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = ioutil.ReadAll(resp.Body)
		return err
	})
	return body, err
}

// Put uploads an object with the given content type and caching directive.
func (s *S3) Put(ctx context.Context, req PutRequest) error {
	return s.retrier.Do(ctx, func() error {
		// Rewind the body in case a previous attempt consumed part of it.
		if _, err := req.Body.Seek(0, io.SeekStart); err != nil {
			return err
		}

		_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(s.bucket),
			Key:          aws.String(s.prefix + "/" + req.Key),
			Body:         aws.ReadSeekCloser(req.Body),
			ContentType:  aws.String(req.ContentType),
			CacheControl: aws.String(req.CacheControl),
		})
		return err
	})
}

// Delete removes the object at the given key.
func (s *S3) Delete(ctx context.Context, key string) error {
	return s.retrier.Do(ctx, func() error {
		_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.prefix + "/" + key),
		})
		return err
	})
}
