// Package gcs archives raw source payloads to object storage before the
// pipeline transforms them. The archive is write-only from the pipeline's
// point of view; replays read the bucket directly.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/algobrain/threatgraph-backend/internal/platform/logger"
)

type RawArchive struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewRawArchiveFromEnv returns (nil, nil) when RAW_GCS_BUCKET_NAME is unset;
// archiving is optional and the pipeline runs without it.
func NewRawArchiveFromEnv(log *logger.Logger) (*RawArchive, error) {
	bucket := strings.TrimSpace(os.Getenv("RAW_GCS_BUCKET_NAME"))
	if bucket == "" {
		log.Warn("RAW_GCS_BUCKET_NAME not set; raw payload archiving disabled")
		return nil, nil
	}

	ctx := context.Background()
	client, err := newStorageClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	log.Info("raw payload archive initialized", "bucket", bucket)
	return &RawArchive{
		log:    log.With("service", "RawArchive"),
		client: client,
		bucket: bucket,
	}, nil
}

func newStorageClient(ctx context.Context) (*storage.Client, error) {
	if emulator := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); emulator != "" {
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := clientOptionsFromEnv()
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// StoreRaw writes the payload under raw/<catalog>/<timestamp>-<uuid>.json and
// returns the gs:// URI of the object.
func (a *RawArchive) StoreRaw(ctx context.Context, catalog string, payload []byte) (string, error) {
	if a == nil {
		return "", nil
	}
	key := fmt.Sprintf(
		"raw/%s/%s-%s.json",
		sanitizeCatalog(catalog),
		time.Now().UTC().Format("20060102T150405Z"),
		uuid.NewString(),
	)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write payload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, key), nil
}

// ListRaw returns the object keys archived for a catalog, oldest first.
func (a *RawArchive) ListRaw(ctx context.Context, catalog string) ([]string, error) {
	if a == nil {
		return nil, nil
	}
	prefix := "raw/" + sanitizeCatalog(catalog) + "/"
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list archived payloads: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// ReadRaw streams an archived payload back for replay.
func (a *RawArchive) ReadRaw(ctx context.Context, key string) (io.ReadCloser, error) {
	if a == nil {
		return nil, fmt.Errorf("raw archive unavailable")
	}
	r, err := a.client.Bucket(a.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open archived payload %q: %w", key, err)
	}
	return r, nil
}

func (a *RawArchive) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

func sanitizeCatalog(catalog string) string {
	s := strings.ToLower(strings.TrimSpace(catalog))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}
