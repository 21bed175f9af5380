// Package s3 provides the backend.Client implementation for AWS S3 and
// S3-compatible nodes, using aws-sdk-go-v2 with per-node static
// credentials.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/shardstore/pkg/backend"
)

// Config holds the connection settings for one S3 node.
type Config struct {
	// Endpoint is the S3 endpoint URL. Empty means AWS.
	Endpoint string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// AccessKey and SecretKey are the node's static credentials.
	AccessKey string
	SecretKey string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO behind the S3 protocol).
	ForcePathStyle bool

	// ProbeTimeout bounds HealthReady. Default 3 seconds.
	ProbeTimeout time.Duration
}

// Client is a backend.Client backed by an S3 endpoint.
type Client struct {
	client       *s3.Client
	probeTimeout time.Duration
}

// New creates a client with an existing S3 client.
func New(client *s3.Client, probeTimeout time.Duration) *Client {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &Client{client: client, probeTimeout: probeTimeout}
}

// NewFromConfig creates a client for one S3 node from config.
func NewFromConfig(ctx context.Context, config Config) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKey, config.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), config.ProbeTimeout), nil
}

func (c *Client) PutObject(ctx context.Context, bucket, key string, reader io.Reader, length int64) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(length),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s/%s: %w", bucket, key, mapError(err))
	}
	return nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", bucket, key, mapError(err))
	}
	return resp.Body, nil
}

func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, backend.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s/%s: %w", bucket, key, mapped)
	}
	return true, nil
}

func (c *Client) RemoveObject(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s/%s: %w", bucket, key, mapError(err))
	}
	return nil
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}
	if !errors.Is(mapError(err), backend.ErrNotFound) {
		return fmt.Errorf("s3 head bucket %s: %w", bucket, mapError(err))
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		errStr := err.Error()
		// Lost a race against a concurrent creator.
		if strings.Contains(errStr, "BucketAlreadyOwnedByYou") ||
			strings.Contains(errStr, "BucketAlreadyExists") {
			return nil
		}
		return fmt.Errorf("s3 create bucket %s: %w", bucket, mapError(err))
	}
	return nil
}

func (c *Client) HealthReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	// S3 has no dedicated readiness endpoint; a ListBuckets round-trip
	// proves the endpoint answers with these credentials.
	_, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("ready probe: %w", backend.ErrUnavailable)
	}
	return nil
}

// mapError converts aws-sdk errors onto the backend error kinds.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "NoSuchKey"),
		strings.Contains(errStr, "NoSuchBucket"),
		strings.Contains(errStr, "NotFound"),
		strings.Contains(errStr, "404"):
		return backend.ErrNotFound
	case strings.Contains(errStr, "SlowDown"),
		strings.Contains(errStr, "ServiceUnavailable"),
		strings.Contains(errStr, "503"):
		return backend.ErrUnavailable
	case strings.Contains(errStr, "BadDigest"),
		strings.Contains(errStr, "XAmzContentSHA256Mismatch"):
		return backend.ErrIntegrity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return backend.ErrUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.ErrUnavailable
	}
	return err
}

var _ backend.Client = (*Client)(nil)
