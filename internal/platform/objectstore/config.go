package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stackport-labs/stackport-go/internal/platform/env"
)

type Config struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	Region            string
	UseSSL            bool
	BucketDiagnostics string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("STACKPORT_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:          env.String("STACKPORT_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:         env.String("STACKPORT_MINIO_ACCESS_KEY", "stackport"),
		SecretKey:         env.String("STACKPORT_MINIO_SECRET_KEY", "stackportminio"),
		Region:            env.String("STACKPORT_MINIO_REGION", "us-east-1"),
		UseSSL:            useSSL,
		BucketDiagnostics: env.String("STACKPORT_MINIO_BUCKET_DIAGNOSTICS", "deployment-diagnostics"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketDiagnostics) == "" {
		return errors.New("diagnostics bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
