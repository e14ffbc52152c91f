package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func NewMinIOClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func EnsureBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := ensureBucket(ctx, client, cfg.BucketDiagnostics, cfg.Region); err != nil {
		return fmt.Errorf("ensure diagnostics bucket: %w", err)
	}
	return nil
}

func CheckBuckets(ctx context.Context, client *minio.Client, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	exists, err := client.BucketExists(ctx, cfg.BucketDiagnostics)
	if err != nil {
		return fmt.Errorf("diagnostics bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("diagnostics bucket missing: %s", cfg.BucketDiagnostics)
	}
	return nil
}

// Archiver stores per-request diagnostic output in the diagnostics bucket.
type Archiver struct {
	Client *minio.Client
	Bucket string
}

// Archive writes the pipeline output reported for a request. One object per
// request; a later report for the same request overwrites the earlier one.
func (a *Archiver) Archive(ctx context.Context, requestID string, output string) error {
	if a == nil || a.Client == nil {
		return fmt.Errorf("object store client is required")
	}
	if strings.TrimSpace(requestID) == "" {
		return fmt.Errorf("request id is required")
	}
	key := fmt.Sprintf("requests/%s/output.txt", strings.TrimSpace(requestID))
	reader := strings.NewReader(output)
	_, err := a.Client.PutObject(ctx, a.Bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("archive output %s: %w", key, err)
	}
	return nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
