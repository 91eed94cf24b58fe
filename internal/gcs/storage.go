package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/logger"
)

const uploadTimeout = 2 * time.Minute

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage. It holds one shared client.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a storage client using Application Default
// Credentials.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close closes the storage client.
func (s *GCSStorageService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *GCSStorageService) Upload(ctx context.Context, bucketName, objectName string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType(objectName)

	if _, err := w.Write(data); err != nil {
		// Cancelling before Close aborts the upload so no object is created.
		cancel()
		_ = w.Close()
		return fmt.Errorf("Upload: write gs://%s/%s: %w", bucketName, objectName, err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize gs://%s/%s: %w", bucketName, objectName, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("bucket", bucketName).
		Str("object", objectName).
		Int("bytes", len(data)).
		Msg("Uploaded object")
	return nil
}

func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseURI(gcsURI)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: %w", err)
	}
	if objectPath == "" {
		return nil, fmt.Errorf("FetchFromGCS: %q has no object path: %w", gcsURI, ErrInvalidURI)
	}

	rc, err := s.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("FetchFromGCS: %s: %w", gcsURI, domain.ErrSourceMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading bytes: %w", err)
	}

	return data, nil
}

func (s *GCSStorageService) List(ctx context.Context, gcsPrefix string) ([]string, error) {
	bucketName, prefix, err := ParseURI(gcsPrefix)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	it := s.client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iter next: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func contentType(objectName string) string {
	switch {
	case strings.HasSuffix(objectName, ".csv"):
		return "text/csv"
	case strings.HasSuffix(objectName, ".xlsx"):
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case strings.HasSuffix(objectName, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "application/octet-stream"
	}
}
