// Package minio archives output tables as CSV objects in S3-compatible storage.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object prefixes for the two archive folders.
const (
	CleanedPrefix    = "data-cleaned"
	NormalizedPrefix = "normalized-data"
	runsPrefix       = "runs"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ArtifactStore uploads each table to <prefix>/<table>.csv, replacing the
// previous upload, and keeps a copy under runs/<run id>/.
// It implements pipeline.Sink.
type ArtifactStore struct {
	client objectPutter
	bucket string
	logger *slog.Logger
}

// NewArtifactStore connects to the configured endpoint and creates the bucket
// if it does not exist.
func NewArtifactStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ArtifactStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
		logger.Info("minio bucket created", "bucket", cfg.MinioBucket)
	}
	return newArtifactStore(client, cfg.MinioBucket, logger), nil
}

func newArtifactStore(client objectPutter, bucket string, logger *slog.Logger) *ArtifactStore {
	return &ArtifactStore{client: client, bucket: bucket, logger: logger}
}

func (s *ArtifactStore) Name() string { return "minio" }

// ObjectKey returns the latest-copy key of a table.
func ObjectKey(table string) string {
	prefix := NormalizedPrefix
	if table == domain.TableCleaned {
		prefix = CleanedPrefix
	}
	return path.Join(prefix, table+".csv")
}

// WriteTable encodes the table as CSV and uploads it.
func (s *ArtifactStore) WriteTable(ctx context.Context, t domain.Table) error {
	var buf bytes.Buffer
	buf.WriteString(csvfile.BOM)
	if err := csvfile.EncodeTable(&buf, t); err != nil {
		return fmt.Errorf("encode %s: %w", t.Name(), err)
	}
	data := buf.Bytes()

	runID := pipeline.RunIDFromContext(ctx)
	keys := []string{ObjectKey(t.Name())}
	if runID != "" {
		keys = append(keys, path.Join(runsPrefix, runID, ObjectKey(t.Name())))
	}

	opts := minio.PutObjectOptions{
		ContentType:  "text/csv; charset=utf-8",
		UserMetadata: map[string]string{"run-id": runID, "rows": fmt.Sprint(t.Len())},
	}
	for _, key := range keys {
		if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
			return fmt.Errorf("put object %s: %w", key, err)
		}
	}
	s.logger.Debug("table archived", "table", t.Name(), "bucket", s.bucket, "key", keys[0], "bytes", len(data))
	return nil
}
