package store

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"racesched/internal/config"
	appLog "racesched/internal/log"
	"racesched/internal/model"
)

// MinIOSink uploads season files to an S3-compatible bucket.
type MinIOSink struct {
	mc     *minio.Client
	bucket string
	prefix string
	indent int

	mu    sync.Mutex
	ready bool
}

func NewMinIOSink(cfg config.S3Config, indent int) (*MinIOSink, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinIOSink{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix, indent: indent}, nil
}

func (s *MinIOSink) Name() string { return "s3" }

// ObjectName is "<prefix>/<year>.json", or just the file name without a prefix.
func ObjectName(prefix string, year int) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return FileName(year)
	}
	return path.Join(prefix, FileName(year))
}

// ensureBucket creates the bucket on first use. Failures are not cached.
func (s *MinIOSink) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

func (s *MinIOSink) Put(ctx context.Context, year int, events []model.Event) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
	}

	data, err := Encode(events, s.indent)
	if err != nil {
		return err
	}

	name := ObjectName(s.prefix, year)
	_, err = s.mc.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", s.bucket, name, err)
	}
	appLog.Info("season object uploaded", "year", year, "bucket", s.bucket, "object", name, "bytes", len(data))
	return nil
}
