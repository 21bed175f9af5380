// Package minio provides the backend.Client implementation for MinIO
// nodes, the default shardstore deployment.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/marmos91/shardstore/pkg/backend"
)

// readyPath is MinIO's readiness probe endpoint.
const readyPath = "/minio/health/ready"

// Config holds the connection settings for one MinIO node.
type Config struct {
	// Address is the host:port of the node.
	Address string

	// AccessKey and SecretKey are the node's static credentials.
	AccessKey string
	SecretKey string

	// UseSSL selects https for both the S3 API and the health probe.
	UseSSL bool

	// ProbeTimeout bounds HealthReady. Default 3 seconds.
	ProbeTimeout time.Duration
}

// Client is a backend.Client backed by a MinIO endpoint.
type Client struct {
	mc           *minio.Client
	httpClient   *http.Client
	readyURL     string
	probeTimeout time.Duration
}

// New creates a client for one MinIO node.
func New(config Config) (*Client, error) {
	mc, err := minio.New(config.Address, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	scheme := "http"
	if config.UseSSL {
		scheme = "https"
	}

	probeTimeout := config.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}

	return &Client{
		mc:           mc,
		httpClient:   &http.Client{Timeout: probeTimeout},
		readyURL:     fmt.Sprintf("%s://%s%s", scheme, config.Address, readyPath),
		probeTimeout: probeTimeout,
	}, nil
}

func (c *Client) PutObject(ctx context.Context, bucket, key string, reader io.Reader, length int64) error {
	_, err := c.mc.PutObject(ctx, bucket, key, reader, length, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio put %s/%s: %w", bucket, key, mapError(err))
	}
	return nil
}

func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get %s/%s: %w", bucket, key, mapError(err))
	}

	// GetObject is lazy; force the first request so missing objects
	// surface here instead of on the first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("minio get %s/%s: %w", bucket, key, mapError(err))
	}
	return obj, nil
}

func (c *Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.mc.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, backend.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("minio stat %s/%s: %w", bucket, key, mapped)
	}
	return true, nil
}

func (c *Client) RemoveObject(ctx context.Context, bucket, key string) error {
	err := c.mc.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		mapped := mapError(err)
		if errors.Is(mapped, backend.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("minio remove %s/%s: %w", bucket, key, mapped)
	}
	return nil
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("minio bucket exists %s: %w", bucket, mapError(err))
	}
	if exists {
		return nil
	}

	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		// Lost a race against a concurrent creator.
		exists, checkErr := c.mc.BucketExists(ctx, bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("minio make bucket %s: %w", bucket, mapError(err))
	}
	return nil
}

func (c *Client) HealthReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.readyURL, nil)
	if err != nil {
		return fmt.Errorf("build ready probe: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ready probe: %w", backend.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ready probe returned %d: %w", resp.StatusCode, backend.ErrUnavailable)
	}
	return nil
}

// mapError converts minio-go errors onto the backend error kinds.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return backend.ErrNotFound
	case "XMinioInvalidObjectName":
		return err
	case "SlowDown", "ServiceUnavailable", "InternalError":
		return backend.ErrUnavailable
	case "XAmzContentSHA256Mismatch", "BadDigest":
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
